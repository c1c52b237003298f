package regalloc

import "sort"

// VarSet is a set of variable names
type VarSet map[string]struct{}

// NewVarSet creates a set holding the given names
func NewVarSet(names ...string) VarSet {
	s := make(VarSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Add inserts a name
func (s VarSet) Add(name string) {
	s[name] = struct{}{}
}

// Remove deletes a name
func (s VarSet) Remove(name string) {
	delete(s, name)
}

// Contains reports membership
func (s VarSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Union returns a new set with the members of both sets
func (s VarSet) Union(o VarSet) VarSet {
	r := s.Copy()
	for n := range o {
		r.Add(n)
	}
	return r
}

// Minus returns a new set with the members of s not in o
func (s VarSet) Minus(o VarSet) VarSet {
	r := NewVarSet()
	for n := range s {
		if !o.Contains(n) {
			r.Add(n)
		}
	}
	return r
}

// Equal reports whether both sets have the same members
func (s VarSet) Equal(o VarSet) bool {
	if len(s) != len(o) {
		return false
	}
	for n := range s {
		if !o.Contains(n) {
			return false
		}
	}
	return true
}

// Copy returns a shallow copy
func (s VarSet) Copy() VarSet {
	r := make(VarSet, len(s))
	for n := range s {
		r[n] = struct{}{}
	}
	return r
}

// Sorted returns the members in lexical order (for deterministic output)
func (s VarSet) Sorted() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
