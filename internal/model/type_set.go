package model

import (
	"fmt"
	"slices"
)

// TypeSet is the closed set of token types an installation accepts.
type TypeSet struct {
	types []string
}

// NewTypeSet returns a TypeSet containing the given types, in the order given.
// Duplicates are ignored.
func NewTypeSet(types ...string) TypeSet {
	var ts TypeSet
	for _, t := range types {
		if t == "" || slices.Contains(ts.types, t) {
			continue
		}
		ts.types = append(ts.types, t)
	}
	return ts
}

// Contains reports whether t is a configured type.
func (ts TypeSet) Contains(t string) bool {
	return slices.Contains(ts.types, t)
}

// Check returns ErrInvalidTokenType (wrapped with the type name) when t is
// not a configured type.
func (ts TypeSet) Check(t string) error {
	if !ts.Contains(t) {
		return fmt.Errorf("%w: %q", ErrInvalidTokenType, t)
	}
	return nil
}

// Types returns a copy of the configured types.
func (ts TypeSet) Types() []string {
	return slices.Clone(ts.types)
}

// Len returns the number of configured types.
func (ts TypeSet) Len() int {
	return len(ts.types)
}
