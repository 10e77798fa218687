package weave

import (
	"strings"

	"github.com/wippyai/il-weaver/weave/internal/engine"
)

// MemberMatcher selects members by qualified type name ("Ns.Type") and
// member name.
type MemberMatcher = engine.MemberMatcher

// ExactMatcher matches exact "Ns.Type::Member" or just "Member" patterns.
type ExactMatcher struct {
	patterns map[string]bool
}

// NewExactMatcher creates a matcher from a list of patterns.
// Patterns can be "Member" (matches any type) or "Ns.Type::Member".
func NewExactMatcher(patterns []string) *ExactMatcher {
	m := &ExactMatcher{patterns: make(map[string]bool)}
	for _, p := range patterns {
		m.patterns[p] = true
	}
	return m
}

// MatchMember returns true if the member matches any pattern.
func (m *ExactMatcher) MatchMember(typeName, member string) bool {
	if m.patterns[typeName+"::"+member] {
		return true
	}
	return m.patterns[member]
}

// WildcardMatcher matches member patterns with wildcard support.
//
// Supports patterns like:
//   - "Ns.Type::Member" - exact match
//   - "Member" - matches the member on any type
//   - "Ns.Type::*" - matches every member of a type
//   - "Ns.*" or "Ns.Type::get_*" - matches by prefix of the qualified name
//   - "*" - matches everything
type WildcardMatcher struct {
	exact     map[string]bool // exact "Ns.Type::Member" matches
	names     map[string]bool // unqualified "Member" matches
	typeWilds map[string]bool // "Ns.Type::*" matches
	prefixes  []string
	matchAll  bool // "*" matches everything
}

// NewWildcardMatcher creates a matcher with wildcard support.
func NewWildcardMatcher(patterns []string) *WildcardMatcher {
	m := &WildcardMatcher{
		exact:     make(map[string]bool),
		names:     make(map[string]bool),
		typeWilds: make(map[string]bool),
	}
	for _, p := range patterns {
		switch {
		case p == "*":
			m.matchAll = true
		case strings.HasSuffix(p, "::*"):
			m.typeWilds[strings.TrimSuffix(p, "::*")] = true
		case strings.HasSuffix(p, "*"):
			m.prefixes = append(m.prefixes, strings.TrimSuffix(p, "*"))
		case strings.Contains(p, "::"):
			m.exact[p] = true
		default:
			m.names[p] = true
		}
	}
	return m
}

// MatchMember returns true if the member matches any pattern.
func (m *WildcardMatcher) MatchMember(typeName, member string) bool {
	if m.matchAll || m.typeWilds[typeName] {
		return true
	}
	full := typeName + "::" + member
	if m.exact[full] || m.names[member] {
		return true
	}
	for _, prefix := range m.prefixes {
		if strings.HasPrefix(full, prefix) {
			return true
		}
	}
	return false
}

// CompositeMatcher combines multiple matchers.
type CompositeMatcher struct {
	matchers []MemberMatcher
}

// NewCompositeMatcher creates a matcher that matches if any sub-matcher matches.
// Nil matchers are ignored.
func NewCompositeMatcher(matchers ...MemberMatcher) *CompositeMatcher {
	m := &CompositeMatcher{}
	for _, sub := range matchers {
		if sub != nil {
			m.matchers = append(m.matchers, sub)
		}
	}
	return m
}

// MatchMember returns true if any sub-matcher matches.
func (m *CompositeMatcher) MatchMember(typeName, member string) bool {
	for _, matcher := range m.matchers {
		if matcher.MatchMember(typeName, member) {
			return true
		}
	}
	return false
}
