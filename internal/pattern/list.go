package pattern

import "strings"

// List is an immutable set of compiled patterns. A host is allowed when it
// matches any pattern in the list. A List is safe for concurrent use.
type List struct {
	patterns []*Pattern
}

// NewList compiles raw patterns, skipping blank entries.
func NewList(raw []string) *List {
	l := &List{}
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		l.patterns = append(l.patterns, Compile(r))
	}
	return l
}

// ParseList compiles a comma-separated pattern list such as
// "example.com,*.example.com".
func ParseList(csv string) *List {
	if csv == "" {
		return &List{}
	}
	return NewList(strings.Split(csv, ","))
}

// Match reports whether host matches at least one pattern.
func (l *List) Match(host string) bool {
	if l == nil {
		return false
	}
	normalized := NormalizeHost(host)
	for _, p := range l.patterns {
		if p.match(normalized) {
			return true
		}
	}
	return false
}

// Len returns the number of patterns.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.patterns)
}

// Strings returns the normalized pattern texts in configuration order.
func (l *List) Strings() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.patterns))
	for i, p := range l.patterns {
		out[i] = p.String()
	}
	return out
}

// Broad returns the patterns for which IsBroad is true.
func (l *List) Broad() []string {
	if l == nil {
		return nil
	}
	var out []string
	for _, p := range l.patterns {
		if p.IsBroad() {
			out = append(out, p.String())
		}
	}
	return out
}
