package domain

import (
	"sort"
	"strings"

	"github.com/v2rayA/ahocorasick-domain"
)

// Reconciler merges observations into historical state and minimizes the
// result. It is the only producer of RuleSets and is deterministic for a
// given input.
type Reconciler struct {
	norm          *Normalizer
	pruneKeywords bool
}

// NewReconciler creates a reconciler. When pruneKeywords is set a keyword
// that contains another retained keyword is dropped as redundant.
func NewReconciler(norm *Normalizer, pruneKeywords bool) *Reconciler {
	return &Reconciler{norm: norm, pruneKeywords: pruneKeywords}
}

// Reconcile unions obs into history and returns the minimal rule set.
// history is not modified.
func (r *Reconciler) Reconcile(history RuleSet, obs Observations) RuleSet {
	merged := RuleSet{
		Keywords: history.Keywords.Clone().Union(obs.Keywords),
		Suffixes: history.Suffixes.Clone().Union(obs.Hostnames),
	}
	return r.Minimize(merged)
}

// Minimize canonicalizes keywords and drops every suffix already covered by
// a keyword or by a shorter suffix.
func (r *Reconciler) Minimize(rs RuleSet) RuleSet {
	keywords := r.norm.Canonicalize(rs.Keywords)
	if r.pruneKeywords {
		keywords = pruneKeywords(keywords)
	}
	return RuleSet{
		Keywords: keywords,
		Suffixes: minimizeSuffixes(keywords, rs.Suffixes),
	}
}

// byLengthThenLex orders shorter strings first, ties broken lexicographically.
func byLengthThenLex(values []string) {
	sort.Slice(values, func(i, j int) bool {
		if len(values[i]) != len(values[j]) {
			return len(values[i]) < len(values[j])
		}
		return values[i] < values[j]
	})
}

func pruneKeywords(keywords Set) Set {
	ordered := keywords.Sorted()
	byLengthThenLex(ordered)

	kept := make([]string, 0, len(ordered))
	out := make(Set, len(ordered))
	for _, k := range ordered {
		covered := false
		for _, shorter := range kept {
			if strings.Contains(k, shorter) {
				covered = true
				break
			}
		}
		if !covered {
			kept = append(kept, k)
			out.Add(k)
		}
	}
	return out
}

func minimizeSuffixes(keywords Set, suffixes Set) Set {
	candidates := make([]string, 0, len(suffixes))
	for s := range suffixes {
		if h, ok := ParseHostname(s); ok {
			candidates = append(candidates, h)
		}
	}
	byLengthThenLex(candidates)

	match := newKeywordMatcher(keywords)
	accepted := make(Set, len(candidates))
	for _, host := range candidates {
		if match.Contains(host) || hasAcceptedAncestor(accepted, host) {
			continue
		}
		accepted.Add(host)
	}
	return accepted
}

// hasAcceptedAncestor reports whether host or any of its parent domains is
// already in accepted.
func hasAcceptedAncestor(accepted Set, host string) bool {
	for h := host; ; {
		if accepted.Has(h) {
			return true
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			return false
		}
		h = h[i+1:]
	}
}

// keywordMatcher answers "does any keyword occur in this hostname".
// Keywords and hosts within the automaton alphabet go through Aho-Corasick;
// anything else falls back to a linear scan.
type keywordMatcher struct {
	ac       *ahocorasick.Matcher
	all      []string
	fallback []string
}

func newKeywordMatcher(keywords Set) *keywordMatcher {
	m := &keywordMatcher{all: keywords.Sorted()}

	dict := make([][]byte, 0, len(m.all))
	for _, k := range m.all {
		if validForAutomaton(k) {
			dict = append(dict, []byte(k))
		} else {
			m.fallback = append(m.fallback, k)
		}
	}
	if len(dict) > 0 {
		ac, err := ahocorasick.NewMatcher(dict)
		if err != nil {
			m.fallback = m.all
			return m
		}
		m.ac = ac
	}
	return m
}

func (m *keywordMatcher) Contains(host string) bool {
	if !validForAutomaton(host) {
		return containsAny(host, m.all)
	}
	if m.ac != nil && m.ac.Contains([]byte(host)) {
		return true
	}
	return containsAny(host, m.fallback)
}

func validForAutomaton(s string) bool {
	for i := 0; i < len(s); i++ {
		if !ahocorasick.IsValidChar(s[i]) {
			return false
		}
	}
	return true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
