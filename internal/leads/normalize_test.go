package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ada@acme.com", NormalizeEmail("  Ada@ACME.com "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestValidEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		email string
		want  bool
	}{
		{"ada@acme.com", true},
		{"first.last+tag@sub.acme.co.uk", true},
		{"o'brien@acme.io", true},
		{"ada@acme", false},
		{"ada.acme.com", false},
		{"ada@@acme.com", false},
		{"ada..l@acme.com", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidEmail(tt.email), tt.email)
	}
}

func TestDedupKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ada@acme.com", DedupKey(" ADA@acme.com", "p1"))
	assert.Equal(t, "ext:p1", DedupKey("", "p1"))
	assert.Equal(t, "", DedupKey("", " "))
}

func TestNormalizeDomain(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"acme.com":                     "acme.com",
		"https://www.Acme.com/about":   "acme.com",
		"http://acme.com:8080":         "acme.com",
		"www.acme.com":                 "acme.com",
		"sub.acme.com.":                "sub.acme.com",
		"":                             "",
		"  HTTPS://WWW.EXAMPLE.ORG/x?y": "example.org",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDomain(in), in)
	}
}

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://acme.com", NormalizeURL("acme.com"))
	assert.Equal(t, "http://www.linkedin.com/in/ada", NormalizeURL("http://www.linkedin.com/in/ada"))
	assert.Equal(t, "https://linkedin.com/in/ada", NormalizeURL(" linkedin.com/in/ada "))
	assert.Equal(t, "", NormalizeURL(""))
	assert.Equal(t, "", NormalizeURL("https://"))
	assert.Equal(t, "", NormalizeURL("ftp://files.acme.com"))
	assert.Equal(t, "", NormalizeURL("http://[::1"))
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Ada Lovelace", NormalizeName("ada   lovelace"))
	assert.Equal(t, "Grace Hopper", NormalizeName("GRACE HOPPER"))
	assert.Equal(t, "Ronald McDonald", NormalizeName("Ronald McDonald"))
	assert.Equal(t, "", NormalizeName("  "))
}

func TestDomainFilter(t *testing.T) {
	t.Parallel()

	none := NewDomainFilter(nil, nil)
	assert.True(t, none.Empty())
	assert.True(t, none.Allow("acme.com"))
	assert.True(t, none.Allow(""))

	exclude := NewDomainFilter(nil, []string{"https://www.gmail.com", "competitor.io"})
	assert.False(t, exclude.Empty())
	assert.False(t, exclude.Allow("gmail.com"))
	assert.False(t, exclude.Allow("eu.competitor.io"))
	assert.True(t, exclude.Allow("acme.com"))
	assert.True(t, exclude.Allow(""))

	include := NewDomainFilter([]string{"acme.com"}, []string{"labs.acme.com"})
	assert.True(t, include.Allow("acme.com"))
	assert.True(t, include.Allow("www.acme.com"))
	assert.True(t, include.Allow("eu.acme.com"))
	assert.False(t, include.Allow("labs.acme.com"))
	assert.False(t, include.Allow("notacme.com"))
	assert.False(t, include.Allow(""))
}
