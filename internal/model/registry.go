package model

// RegistryEntry locates a definition by qualified name.
type RegistryEntry struct {
	QualifiedName string
	File          string
	Scope         string
	Name          string
}

// ScopeEntry locates a package declaration.
type ScopeEntry struct {
	Name  string
	File  string
	Names []string // definition names declared in the scope, in order
}

// Registry is the read-only project-wide symbol table. Entries keep the
// position of their first insertion; a later insertion of the same key only
// replaces the value.
type Registry struct {
	order  []string
	byName map[string]RegistryEntry

	scopeOrder []string
	scopes     map[string]ScopeEntry
}

// Lookup returns the entry for a qualified name.
func (r *Registry) Lookup(qualifiedName string) (RegistryEntry, bool) {
	if r == nil {
		return RegistryEntry{}, false
	}
	e, ok := r.byName[qualifiedName]
	return e, ok
}

// Entries returns all entries in registry order.
func (r *Registry) Entries() []RegistryEntry {
	if r == nil {
		return nil
	}
	out := make([]RegistryEntry, 0, len(r.order))
	for _, qn := range r.order {
		out = append(out, r.byName[qn])
	}
	return out
}

// Len returns the number of distinct qualified names.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Scope returns the package entry for a scope name.
func (r *Registry) Scope(name string) (ScopeEntry, bool) {
	if r == nil {
		return ScopeEntry{}, false
	}
	s, ok := r.scopes[name]
	return s, ok
}

// Scopes returns all package entries in registry order.
func (r *Registry) Scopes() []ScopeEntry {
	if r == nil {
		return nil
	}
	out := make([]ScopeEntry, 0, len(r.scopeOrder))
	for _, name := range r.scopeOrder {
		out = append(out, r.scopes[name])
	}
	return out
}

// RegistryBuilder accumulates registry entries. It is used only while the
// registry is being folded; the resulting Registry is never mutated.
type RegistryBuilder struct {
	reg *Registry
}

// NewRegistryBuilder returns an empty builder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{reg: &Registry{
		byName: make(map[string]RegistryEntry),
		scopes: make(map[string]ScopeEntry),
	}}
}

// Put inserts or overwrites an entry. When an entry with the same qualified
// name already exists, the displaced entry is returned.
func (b *RegistryBuilder) Put(e RegistryEntry) (RegistryEntry, bool) {
	prev, exists := b.reg.byName[e.QualifiedName]
	if !exists {
		b.reg.order = append(b.reg.order, e.QualifiedName)
	}
	b.reg.byName[e.QualifiedName] = e
	return prev, exists
}

// PutScope records a package declaration. A redeclaration in the same file
// appends names; a declaration in another file replaces the entry.
func (b *RegistryBuilder) PutScope(name, file string, names []string) {
	prev, exists := b.reg.scopes[name]
	if !exists {
		b.reg.scopeOrder = append(b.reg.scopeOrder, name)
	}
	if exists && prev.File == file {
		prev.Names = append(prev.Names, names...)
		b.reg.scopes[name] = prev
		return
	}
	b.reg.scopes[name] = ScopeEntry{Name: name, File: file, Names: append([]string(nil), names...)}
}

// Registry returns the built registry. The builder must not be used afterwards.
func (b *RegistryBuilder) Registry() *Registry {
	r := b.reg
	b.reg = nil
	return r
}
