// internal/identity/identity_test.go
package identity

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/regflow/internal/config"
)

var aliasPattern = regexp.MustCompile(`^(forsystemxu|raoxu1314|xhrry1314)\+[a-z0-9]{6}@gmail\.com$`)

func TestGenerator_Next(t *testing.T) {
	g := NewGenerator(config.NewDefaultConfig().Identity)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		creds, err := g.Next()
		require.NoError(t, err)
		assert.Regexp(t, aliasPattern, creds.Identity)
		seen[creds.Identity] = true
	}
	// 36^6 possible suffixes; a collision in 50 draws would point at a broken RNG.
	assert.Len(t, seen, 50)
}

func TestGenerator_ConfiguredPassword(t *testing.T) {
	cfg := config.IdentityConfig{Bases: []string{"someone@example.org"}, SuffixLength: 3, Password: "qqq123456"}
	creds, err := NewGenerator(cfg).Next()
	require.NoError(t, err)

	assert.Equal(t, "qqq123456", creds.Password)
	assert.Regexp(t, `^someone\+[a-z0-9]{3}@example\.org$`, creds.Identity)
}

func TestGenerator_ReplacesExistingTag(t *testing.T) {
	cfg := config.IdentityConfig{Bases: []string{"someone+old@example.org"}, SuffixLength: 6}
	creds, err := NewGenerator(cfg).Next()
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(creds.Identity, "+"))
	assert.NotContains(t, creds.Identity, "old")
}

func TestGenerator_GeneratedPasswordIsCompliant(t *testing.T) {
	g := NewGenerator(config.IdentityConfig{Bases: []string{"a@b.co"}, SuffixLength: 6})

	for i := 0; i < 20; i++ {
		creds, err := g.Next()
		require.NoError(t, err)
		p := creds.Password

		assert.Len(t, p, passwordLength)
		assert.True(t, strings.ContainsAny(p, upperChars), p)
		assert.True(t, strings.ContainsAny(p, lowerChars), p)
		assert.True(t, strings.ContainsAny(p, numberChars), p)
		assert.True(t, strings.ContainsAny(p, symbolChars), p)
		assert.False(t, strings.ContainsAny(p, "0O1lI"), "ambiguous characters are excluded: %s", p)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }

func TestGenerator_RandomnessFailure(t *testing.T) {
	g := NewGenerator(config.IdentityConfig{Bases: []string{"a@b.co"}, SuffixLength: 6})
	g.random = failingReader{}

	_, err := g.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crypto/rand failure")
}

func TestGenerator_Errors(t *testing.T) {
	_, err := NewGenerator(config.IdentityConfig{SuffixLength: 6}).Next()
	assert.Error(t, err)

	_, err = NewGenerator(config.IdentityConfig{Bases: []string{"no-domain"}, SuffixLength: 6}).Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no domain")
}
