// Package moderation rejects comment text containing forbidden terms.
package moderation

import "strings"

// A Filter checks comment text against a fixed set of forbidden terms.
// Matching is case-sensitive substring containment, not whole-word.
type Filter struct {
	terms []string
}

// New returns a Filter that rejects text containing any of the given terms.
// Empty terms are ignored.
func New(terms ...string) *Filter {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t != "" {
			out = append(out, t)
		}
	}
	return &Filter{terms: out}
}

// Allows reports whether the text is free of all forbidden terms.
func (f *Filter) Allows(text string) bool {
	for _, t := range f.terms {
		if strings.Contains(text, t) {
			return false
		}
	}
	return true
}
