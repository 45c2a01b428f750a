// internal/identity/identity.go
package identity

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/xkilldash9x/regflow/internal/config"
)

const (
	suffixChars = "abcdefghijklmnopqrstuvwxyz0123456789"

	// Ambiguous characters are left out of generated passwords.
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	numberChars = "23456789"
	symbolChars = "!@#$%^&*()_+-="

	passwordLength = 16
)

// Credentials is one generated identity and the password to register it with.
type Credentials struct {
	Identity string
	Password string
}

// Generator creates plus-addressed aliases of a fixed set of base mailboxes, so every run
// registers a fresh address that still delivers to a mailbox the operator reads.
type Generator struct {
	bases     []string
	suffixLen int
	password  string
	random    io.Reader
}

// NewGenerator builds a Generator from validated configuration.
func NewGenerator(cfg config.IdentityConfig) *Generator {
	return &Generator{
		bases:     cfg.Bases,
		suffixLen: cfg.SuffixLength,
		password:  cfg.Password,
		random:    rand.Reader,
	}
}

// Next returns a new alias and either the configured password or a generated one.
func (g *Generator) Next() (Credentials, error) {
	if len(g.bases) == 0 {
		return Credentials{}, fmt.Errorf("no base addresses configured")
	}

	i, err := g.intn(len(g.bases))
	if err != nil {
		return Credentials{}, err
	}
	local, domain, ok := strings.Cut(g.bases[i], "@")
	if !ok {
		return Credentials{}, fmt.Errorf("base address %q has no domain", g.bases[i])
	}
	// An existing tag is replaced rather than nested.
	local, _, _ = strings.Cut(local, "+")

	suffix, err := g.randomString(suffixChars, g.suffixLen)
	if err != nil {
		return Credentials{}, err
	}

	password := g.password
	if password == "" {
		if password, err = g.compliantPassword(); err != nil {
			return Credentials{}, err
		}
	}

	return Credentials{
		Identity: fmt.Sprintf("%s+%s@%s", local, suffix, domain),
		Password: password,
	}, nil
}

func (g *Generator) intn(n int) (int, error) {
	v, err := rand.Int(g.random, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("crypto/rand failure: %w", err)
	}
	return int(v.Int64()), nil
}

func (g *Generator) randomString(charset string, n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		j, err := g.intn(len(charset))
		if err != nil {
			return "", err
		}
		b[i] = charset[j]
	}
	return string(b), nil
}

// compliantPassword satisfies the usual complexity rules: at least one character from
// each class, shuffled so the mandatory ones are not in predictable positions.
func (g *Generator) compliantPassword() (string, error) {
	password := make([]byte, 0, passwordLength)
	for _, charset := range []string{upperChars, numberChars, symbolChars, lowerChars} {
		c, err := g.randomString(charset, 1)
		if err != nil {
			return "", err
		}
		password = append(password, c...)
	}

	rest, err := g.randomString(lowerChars+upperChars+numberChars+symbolChars, passwordLength-len(password))
	if err != nil {
		return "", err
	}
	password = append(password, rest...)

	// Fisher-Yates
	for i := len(password) - 1; i > 0; i-- {
		j, err := g.intn(i + 1)
		if err != nil {
			return "", fmt.Errorf("crypto/rand failure during shuffle: %w", err)
		}
		password[i], password[j] = password[j], password[i]
	}
	return string(password), nil
}
