package enrollment

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"classroom/backend/internal/shared"
)

func noneExist(context.Context, string) (bool, error) { return false, nil }

func TestGenerateFormat(t *testing.T) {
	// candidate masks bytes to five bits
	if len(CodeAlphabet) != 32 {
		t.Fatalf("alphabet has %d symbols, want 32", len(CodeAlphabet))
	}
	g := NewGenerator()
	for i := 0; i < 200; i++ {
		code, err := g.Generate(context.Background(), noneExist)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !ValidCode(code) {
			t.Fatalf("Generate returned malformed code %q", code)
		}
		if strings.ContainsAny(code, "01IO") {
			t.Fatalf("code %q contains an ambiguous character", code)
		}
	}
}

func TestGenerateSkipsTakenCodes(t *testing.T) {
	// the first candidate is AAAAAA, the second BBBBBB
	src := bytes.NewReader(append(bytes.Repeat([]byte{0}, CodeLength), bytes.Repeat([]byte{1}, CodeLength)...))
	g := &Generator{Source: src, MaxAttempts: 5}

	var checked []string
	code, err := g.Generate(context.Background(), func(_ context.Context, c string) (bool, error) {
		checked = append(checked, c)
		return c == "AAAAAA", nil
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if code != "BBBBBB" {
		t.Errorf("code = %q, want BBBBBB", code)
	}
	if len(checked) != 2 {
		t.Errorf("checked %v, want two candidates", checked)
	}
}

func TestGenerateExhausted(t *testing.T) {
	g := &Generator{MaxAttempts: 7}
	calls := 0
	_, err := g.Generate(context.Background(), func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})
	if !errors.Is(err, shared.ErrCodeGenerationExhausted) {
		t.Fatalf("err = %v, want ErrCodeGenerationExhausted", err)
	}
	if calls != 7 {
		t.Errorf("predicate called %d times, want 7", calls)
	}
}

func TestGeneratePredicateError(t *testing.T) {
	boom := errors.New("store unavailable")
	calls := 0
	_, err := NewGenerator().Generate(context.Background(), func(context.Context, string) (bool, error) {
		calls++
		return false, boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Errorf("err = %v after %d calls, want boom after 1", err, calls)
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewGenerator().Generate(ctx, noneExist); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNormalizeAndValidCode(t *testing.T) {
	tests := []struct {
		in    string
		norm  string
		valid bool
	}{
		{in: " abc234 ", norm: "ABC234", valid: true},
		{in: "ABC23", norm: "ABC23", valid: false},
		{in: "ABC2340", norm: "ABC2340", valid: false},
		{in: "abcd1o", norm: "ABCD1O", valid: false},
		{in: "", norm: "", valid: false},
	}
	for _, tt := range tests {
		norm := NormalizeCode(tt.in)
		if norm != tt.norm {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, norm, tt.norm)
		}
		if got := ValidCode(norm); got != tt.valid {
			t.Errorf("ValidCode(%q) = %v, want %v", norm, got, tt.valid)
		}
	}
}
