package enrollment

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"strings"

	"classroom/backend/internal/metrics"
	"classroom/backend/internal/shared"
)

const (
	// CodeAlphabet omits I, O, 0 and 1 so codes survive being read aloud
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// CodeLength is the number of characters in an enrollment code
	CodeLength = 6
	// DefaultMaxAttempts bounds the collision retry loop
	DefaultMaxAttempts = 100
)

// ExistsFunc reports whether a candidate code is already held by an active class
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator draws enrollment codes unique against an existence check
type Generator struct {
	// Source of randomness; crypto/rand when nil
	Source      io.Reader
	MaxAttempts int
}

// NewGenerator returns a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{Source: rand.Reader, MaxAttempts: DefaultMaxAttempts}
}

// Generate draws candidates until exists reports one free. A failing
// existence check aborts immediately; running out of attempts returns
// ErrCodeGenerationExhausted.
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := g.candidate()
		if err != nil {
			return "", fmt.Errorf("failed to draw enrollment code: %w", err)
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check enrollment code: %w", err)
		}
		if !taken {
			metrics.CodeGenerationAttempts.Observe(float64(attempt))
			return code, nil
		}
	}
	metrics.CodeGenerationAttempts.Observe(float64(attempts))
	return "", fmt.Errorf("%w after %d attempts", shared.ErrCodeGenerationExhausted, attempts)
}

// candidate draws one code. The alphabet has 32 symbols, so masking a
// random byte to its low five bits is uniform.
func (g *Generator) candidate() (string, error) {
	src := g.Source
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, CodeLength)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = CodeAlphabet[b&31]
	}
	return string(buf), nil
}

// NormalizeCode canonicalises user input: surrounding space trimmed, upper case
func NormalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidCode reports whether s is a well-formed, already normalised code
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(CodeAlphabet, s[i]) < 0 {
			return false
		}
	}
	return true
}
