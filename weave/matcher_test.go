package weave

import "testing"

func TestExactMatcher(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		member   string
		patterns []string
		want     bool
	}{
		{
			name:     "match by member name only",
			patterns: []string{"Format"},
			typeName: "Demo.Calc",
			member:   "Format",
			want:     true,
		},
		{
			name:     "match by qualified name",
			patterns: []string{"Demo.Calc::Format"},
			typeName: "Demo.Calc",
			member:   "Format",
			want:     true,
		},
		{
			name:     "no match different type",
			patterns: []string{"Demo.Calc::Format"},
			typeName: "Demo.Other",
			member:   "Format",
			want:     false,
		},
		{
			name:     "no wildcard support",
			patterns: []string{"Demo.Calc::*"},
			typeName: "Demo.Calc",
			member:   "Format",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewExactMatcher(tt.patterns)
			if got := m.MatchMember(tt.typeName, tt.member); got != tt.want {
				t.Errorf("MatchMember(%q, %q) = %v, want %v", tt.typeName, tt.member, got, tt.want)
			}
		})
	}
}

func TestWildcardMatcher(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		member   string
		patterns []string
		want     bool
	}{
		{"match all", "Demo.Calc", "Format", []string{"*"}, true},
		{"type wildcard", "Demo.Calc", "Format", []string{"Demo.Calc::*"}, true},
		{"type wildcard other type", "Demo.Counter", "Inc", []string{"Demo.Calc::*"}, false},
		{"namespace prefix", "Demo.Counter", "Inc", []string{"Demo.*"}, true},
		{"member prefix", "Demo.Settings", "get_Value", []string{"Demo.Settings::get_*"}, true},
		{"member prefix miss", "Demo.Settings", "set_Value", []string{"Demo.Settings::get_*"}, false},
		{"exact", "Demo.Calc", "Fail", []string{"Demo.Calc::Fail"}, true},
		{"name only", "Demo.Counter", "Run", []string{"Run"}, true},
		{"empty", "Demo.Calc", "Format", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewWildcardMatcher(tt.patterns)
			if got := m.MatchMember(tt.typeName, tt.member); got != tt.want {
				t.Errorf("MatchMember(%q, %q) = %v, want %v", tt.typeName, tt.member, got, tt.want)
			}
		})
	}
}

func TestCompositeMatcher(t *testing.T) {
	m := NewCompositeMatcher(
		nil,
		NewExactMatcher([]string{"Format"}),
		NewWildcardMatcher([]string{"Demo.Settings::*"}),
	)

	if !m.MatchMember("Demo.Calc", "Format") {
		t.Error("exact sub-matcher not consulted")
	}
	if !m.MatchMember("Demo.Settings", "Limit") {
		t.Error("wildcard sub-matcher not consulted")
	}
	if m.MatchMember("Demo.Calc", "Fail") {
		t.Error("unexpected match")
	}
	if NewCompositeMatcher().MatchMember("Demo.Calc", "Format") {
		t.Error("empty composite matched")
	}
}
