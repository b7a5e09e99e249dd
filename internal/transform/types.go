// Package transform turns an assembled project into graph nodes and
// relationships with deterministic identifiers.
package transform

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"
)

// Node labels.
const (
	LabelFile    = "FILE"
	LabelPackage = "PACKAGE"
	LabelMethod  = "METHOD"
	LabelUse     = "USE_STATEMENT"
	LabelScript  = "SCRIPT_EXECUTION"
)

// Relationship types.
const (
	RelContainsPackage = "CONTAINS_PACKAGE"
	RelHasMethod       = "HAS_METHOD"
	RelUsesModule      = "USES_MODULE"
	RelHasScript       = "HAS_SCRIPT"
	RelCallsMethod     = "CALLS_METHOD"
	RelDependsOn       = "DEPENDS_ON"
	RelInherits        = "INHERITS"
	RelIntraCall       = "INTRA_METHOD_CALL"
)

const (
	maxStringLen = 5000
	maxListLen   = 2000
)

// Attr is one key/value attribute.
type Attr struct {
	Key   string
	Value any
}

// Attrs is an ordered attribute list. It marshals as a JSON object with keys
// in insertion order.
type Attrs []Attr

// Get returns the value stored under key.
func (a Attrs) Get(key string) (any, bool) {
	for _, kv := range a {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key, or appends it. String values longer than
// the storage limit are truncated.
func (a *Attrs) Set(key string, value any) {
	if s, ok := value.(string); ok {
		value = truncate(s, maxStringLen)
	}
	for i := range *a {
		if (*a)[i].Key == key {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Attr{Key: key, Value: value})
}

// Clone returns a copy that can be modified independently.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	copy(out, a)
	return out
}

// Map returns the attributes as a map.
func (a Attrs) Map() map[string]any {
	m := make(map[string]any, len(a))
	for _, kv := range a {
		m[kv.Key] = kv.Value
	}
	return m
}

// MarshalJSON implements json.Marshaler.
func (a Attrs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Node is a graph vertex.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"type"`
	Name  string `json:"name"`
	Attrs Attrs  `json:"properties"`
}

// Relationship is a directed graph edge.
type Relationship struct {
	From  string `json:"from_id"`
	To    string `json:"to_id"`
	Type  string `json:"type"`
	Attrs Attrs  `json:"properties"`
}

// Graph is the transformed project.
type Graph struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

// NodeCounts returns the number of nodes per label.
func (g *Graph) NodeCounts() map[string]int {
	out := make(map[string]int)
	for _, n := range g.Nodes {
		out[n.Label]++
	}
	return out
}

// RelationshipCounts returns the number of relationships per type.
func (g *Graph) RelationshipCounts() map[string]int {
	out := make(map[string]int)
	for _, r := range g.Relationships {
		out[r.Type]++
	}
	return out
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// jsonList encodes a string list the way list attributes are stored.
func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return truncate(string(b), maxListLen)
}
