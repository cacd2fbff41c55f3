package domain

import (
	"sort"
)

// Set is an unordered collection of strings.
// Union over Sets is commutative and associative, which is what lets site
// workers produce observations in any order.
type Set map[string]struct{}

// NewSet builds a set from the given values.
func NewSet(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Add inserts v into the set.
func (s Set) Add(v string) { s[v] = struct{}{} }

// Has reports whether v is a member.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int { return len(s) }

// Union adds every member of other to s and returns s.
func (s Set) Union(other Set) Set {
	for v := range other {
		s[v] = struct{}{}
	}
	return s
}

// Clone returns an independent copy. A nil set clones to an empty set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// Sorted returns the members in lexicographic order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold exactly the same members.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for v := range s {
		if !other.Has(v) {
			return false
		}
	}
	return true
}

// RuleSet is the persisted classification state.
//
// It is NOT tied to a file format; the rulefile package decodes and encodes
// it at process boundaries only.
type RuleSet struct {
	// ─────────────────────────────
	// Contains-style matches
	// ─────────────────────────────

	// Keywords are keyword roots matched as substrings of a hostname.
	// Example: yyv
	Keywords Set

	// ─────────────────────────────
	// Suffix matches
	// ─────────────────────────────

	// Suffixes match a hostname and all of its subdomains.
	// Example: mainapi.example.com
	Suffixes Set
}

// NewRuleSet returns an empty rule set.
func NewRuleSet() RuleSet {
	return RuleSet{Keywords: NewSet(), Suffixes: NewSet()}
}

// Len returns the total number of rules.
func (r RuleSet) Len() int {
	return r.Keywords.Len() + r.Suffixes.Len()
}

// Equal reports whether both rule sets hold the same rules.
func (r RuleSet) Equal(other RuleSet) bool {
	return r.Keywords.Equal(other.Keywords) && r.Suffixes.Equal(other.Suffixes)
}

// Observations is what a harvest run produced: every hostname seen and the
// keyword candidates the normalizer derived from them.
type Observations struct {
	Hostnames Set
	Keywords  Set
}

// NewObservations returns empty observations.
func NewObservations() Observations {
	return Observations{Hostnames: NewSet(), Keywords: NewSet()}
}

// Merge unions other into o.
func (o Observations) Merge(other Observations) {
	o.Hostnames.Union(other.Hostnames)
	o.Keywords.Union(other.Keywords)
}
