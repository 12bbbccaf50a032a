package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		pattern string
		want    bool
	}{
		{"exact", "example.com", "example.com", true},
		{"exact differs", "example.org", "example.com", false},
		{"no substring prefix", "evilexample.com", "example.com", false},
		{"no substring suffix", "example.com.evil.com", "example.com", false},
		{"dot is literal", "exampleXcom", "example.com", false},
		{"subdomain wildcard", "api.example.com", "*.example.com", true},
		{"subdomain wildcard needs label", "example.com", "*.example.com", false},
		{"wildcard spans labels", "a.b.example.com", "*.example.com", true},
		{"wildcard lookalike", "evil-example.com", "*.example.com", false},
		{"bare wildcard", "anything.test", "*", true},
		{"inner wildcard", "api-v2.example.com", "api-*.example.com", true},
		{"inner wildcard empty run", "api-.example.com", "api-*.example.com", true},
		{"trailing wildcard", "api.example.io", "api.*", true},
		{"multiple wildcards", "eu.api.example.com", "*.api.*.com", true},
		{"case insensitive host", "API.Example.COM", "*.example.com", true},
		{"case insensitive pattern", "api.example.com", "*.EXAMPLE.com", true},
		{"regexp metachar literal plus", "aaa.com", "a+.com", false},
		{"regexp metachar literal plus exact", "a+.com", "a+.com", true},
		{"regexp group literal", "a.com", "(a|b).com", false},
		{"regexp class literal", "a.com", "[a-z].com", false},
		{"question mark literal", "ab.com", "a?.com", false},
		{"anchor chars literal", "example.com", "^example.com$", false},
		{"idn host", "bücher.example", "xn--bcher-kva.example", true},
		{"idn pattern", "bücher.example", "bücher.example", true},
		{"idn pattern punycode host", "xn--bcher-kva.example", "bücher.example", true},
		{"idn pattern uppercase", "BÜCHER.example", "Bücher.Example", true},
		{"idn pattern differs", "bucher.example", "bücher.example", false},
		{"idn wildcard pattern", "api.bücher.example", "*.bücher.example", true},
		{"idn wildcard pattern needs label", "bücher.example", "*.bücher.example", false},
		{"idn sharp s", "straße.example", "straße.example", true},
		{"ip literal", "127.0.0.1", "127.0.0.1", true},
		{"ipv6 literal", "::1", "::1", true},
		{"empty pattern", "example.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.host, tt.pattern))
		})
	}
}

func TestMatch_ExactWithoutWildcard(t *testing.T) {
	hosts := []string{"example.com", "www.example.com", "localhost", "10.0.0.1", "a-b.c"}
	for _, h := range hosts {
		for _, p := range hosts {
			assert.Equal(t, h == p, Match(h, p), "host %q pattern %q", h, p)
		}
	}
}

func TestMatch_ExactWithoutWildcardIDN(t *testing.T) {
	hosts := []string{"bücher.example", "straße.example", "пример.испытание", "example.com"}
	for _, h := range hosts {
		for _, p := range hosts {
			assert.Equal(t, h == p, Match(h, p), "host %q pattern %q", h, p)
		}
	}
}

func TestCompile_IDNPatternNormalized(t *testing.T) {
	assert.Equal(t, "*.xn--bcher-kva.example", Compile("*.Bücher.example").String())
	assert.Equal(t, "shop-*.example", Compile("shop-*.example").String())
}

func TestCompile_Reusable(t *testing.T) {
	p := Compile(" *.Example.com ")

	assert.Equal(t, "*.example.com", p.String())
	assert.True(t, p.Match("api.example.com"))
	assert.True(t, p.Match("www.example.com"))
	assert.False(t, p.Match("example.com"))
}

func TestPattern_ZeroValue(t *testing.T) {
	var p Pattern
	assert.False(t, p.Match("example.com"))
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{"bücher.example", "xn--bcher-kva.example"},
		{"under_score.example", "under_score.example"},
		{"::1", "::1"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHost(tt.in))
		})
	}
}

func TestIsBroad(t *testing.T) {
	tests := []struct {
		pattern string
		want    bool
	}{
		{"*", true},
		{"api.*", true},
		{"*.com", true},
		{"*.co.uk", true},
		{"*.github.io", true},
		{"*.example.com", false},
		{"example.com", false},
		{"*.localhost", false},
		{"api-*.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, Compile(tt.pattern).IsBroad())
		})
	}
}
