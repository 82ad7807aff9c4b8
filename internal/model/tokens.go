// Package model defines the core data structures for the cumin rule engine.
package model

import (
	"slices"
	"strings"
)

// TokenSet is a deduplicated, sorted set of normalized description tokens.
// The zero value is the empty set.
type TokenSet struct {
	tokens []string
}

// NewTokenSet builds a set from arbitrary tokens, dropping empties and duplicates.
func NewTokenSet(tokens ...string) TokenSet {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return TokenSet{tokens: slices.Compact(out)}
}

// ParseTokenSet is the inverse of TokenSet.String.
func ParseTokenSet(s string) TokenSet {
	return NewTokenSet(strings.Fields(s)...)
}

// Len returns the number of tokens.
func (ts TokenSet) Len() int {
	return len(ts.tokens)
}

// IsEmpty reports whether the set has no tokens.
func (ts TokenSet) IsEmpty() bool {
	return len(ts.tokens) == 0
}

// Tokens returns a copy of the tokens in canonical order.
func (ts TokenSet) Tokens() []string {
	return slices.Clone(ts.tokens)
}

// Contains reports whether token is in the set.
func (ts TokenSet) Contains(token string) bool {
	_, found := slices.BinarySearch(ts.tokens, token)
	return found
}

// SubsetOf reports whether every token of ts is also in other.
// The empty set is a subset of everything.
func (ts TokenSet) SubsetOf(other TokenSet) bool {
	if len(ts.tokens) > len(other.tokens) {
		return false
	}
	for _, t := range ts.tokens {
		if !other.Contains(t) {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold the same tokens.
func (ts TokenSet) Equal(other TokenSet) bool {
	return slices.Equal(ts.tokens, other.tokens)
}

// String returns the canonical form: sorted tokens joined by a single space.
// It is the token component of a rule's identity key.
func (ts TokenSet) String() string {
	return strings.Join(ts.tokens, " ")
}
