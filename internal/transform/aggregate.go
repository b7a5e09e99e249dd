package transform

// Aggregate merges relationships sharing (from, to, type) into one. The
// merged relationship keeps the attributes of the first occurrence and adds
// call_count, plus call_patterns, call_types and call_type when any
// occurrence carried a call pattern or type. Output order is first-seen.
func Aggregate(rels []Relationship) []Relationship {
	type key struct{ from, to, typ string }
	type group struct {
		rel      Relationship
		count    int
		patterns []string
		types    []string
	}

	index := make(map[key]int)
	var groups []*group

	for _, r := range rels {
		k := key{r.From, r.To, r.Type}
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			first := r
			first.Attrs = r.Attrs.Clone()
			groups = append(groups, &group{rel: first})
		}
		g := groups[i]
		g.count++
		if v, ok := r.Attrs.Get("call_pattern"); ok {
			g.patterns = appendUnique(g.patterns, v.(string))
		}
		if v, ok := r.Attrs.Get("call_type"); ok {
			g.types = appendUnique(g.types, v.(string))
		}
	}

	out := make([]Relationship, 0, len(groups))
	for _, g := range groups {
		r := g.rel
		r.Attrs.Set("call_count", g.count)
		if len(g.patterns) > 0 {
			r.Attrs.Set("call_patterns", jsonList(g.patterns))
		}
		if len(g.types) > 0 {
			r.Attrs.Set("call_types", jsonList(g.types))
			r.Attrs.Set("call_type", g.types[0])
		}
		out = append(out, r)
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
