// Package pattern matches hostnames against allowlist patterns in which
// '*' stands for any run of characters.
package pattern

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// Wildcard is the only metacharacter a pattern may contain.
const Wildcard = "*"

// Pattern is a compiled hostname pattern. The zero value matches nothing.
type Pattern struct {
	raw string
	re  *regexp.Regexp
}

// Compile turns a pattern such as "*.example.com" into an anchored matcher.
// Every character other than '*' is literal. Compile never fails: regexp
// metacharacters coming from configuration are quoted before compilation.
func Compile(p string) *Pattern {
	p = normalizePattern(p)

	parts := strings.Split(p, Wildcard)
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	expr := `(?s)^` + strings.Join(parts, `.*`) + `$`

	return &Pattern{raw: p, re: regexp.MustCompile(expr)}
}

// String returns the normalized pattern text.
func (p *Pattern) String() string {
	return p.raw
}

// Match reports whether the whole of host matches p. Comparison is
// case-insensitive and IDN hostnames are compared in their ASCII form.
func (p *Pattern) Match(host string) bool {
	return p.match(NormalizeHost(host))
}

func (p *Pattern) match(normalized string) bool {
	if p == nil || p.re == nil {
		return false
	}
	return p.re.MatchString(normalized)
}

// Match reports whether hostname matches pattern. It compiles pattern on
// every call; use Compile or List when the same pattern is tested repeatedly.
func Match(hostname, pattern string) bool {
	return Compile(pattern).Match(hostname)
}

// NormalizeHost lowercases host and converts internationalized labels to
// punycode. Hosts the IDNA lookup profile rejects (IP literals, labels
// with underscores) are returned lowercased but otherwise untouched.
func NormalizeHost(host string) string {
	lower := strings.ToLower(host)
	ascii, err := idna.Lookup.ToASCII(lower)
	if err != nil || ascii == "" {
		return lower
	}
	return ascii
}

// normalizePattern lowercases p and converts every wildcard-free label to
// punycode the way NormalizeHost does, so "*.bücher.example" is matched
// against hosts in their ASCII form. Labels holding a wildcard are only
// lowercased; a partial label has no punycode form.
func normalizePattern(p string) string {
	labels := strings.Split(strings.ToLower(strings.TrimSpace(p)), ".")
	for i, label := range labels {
		if label == "" || strings.Contains(label, Wildcard) || isASCII(label) {
			continue
		}
		if ascii, err := idna.Lookup.ToASCII(label); err == nil && ascii != "" {
			labels[i] = ascii
		}
	}
	return strings.Join(labels, ".")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// IsBroad reports whether p admits hosts anyone can register: a bare
// wildcard, a trailing wildcard, or a wildcard directly in front of a
// public suffix such as "*.com" or "*.co.uk".
func (p *Pattern) IsBroad() bool {
	i := strings.LastIndex(p.raw, Wildcard)
	if i < 0 {
		return false
	}
	suffix := strings.TrimPrefix(p.raw[i+len(Wildcard):], ".")
	suffix = strings.TrimSuffix(suffix, ".")
	switch suffix {
	case "":
		return true
	case "localhost":
		return false
	}
	// The boolean result is ignored because it is false for private
	// suffixes such as github.io, which are just as dangerous here.
	etld, _ := publicsuffix.PublicSuffix(suffix)
	return etld == suffix
}
