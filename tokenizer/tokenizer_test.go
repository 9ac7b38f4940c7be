package tokenizer

import (
	"errors"
	"strings"
	"testing"
)

func TestEstimator_CountTokens(t *testing.T) {
	t.Parallel()

	est := NewEstimator()
	cases := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"ascii", "hello world", 2},           // 11 chars / 4
		{"cjk", "向量检索", 2},                    // 4 chars / 1.5
		{"mixed", "go 并发", 2},                 // 2 cjk + 3 ascii
		{"short ascii rounds up to one", "a", 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := est.CountTokens(tc.text)
			if err != nil {
				t.Fatalf("CountTokens: %v", err)
			}
			if got != tc.want {
				t.Fatalf("CountTokens(%q) = %d, want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestEstimator_DecodeUnsupported(t *testing.T) {
	t.Parallel()

	if _, err := NewEstimator().Decode([]int{1, 2}); err == nil {
		t.Fatal("expected decode error from estimator")
	}
}

// failingTokenizer always errors, standing in for a tiktoken instance
// whose encoding data could not be loaded.
type failingTokenizer struct{}

func (failingTokenizer) CountTokens(string) (int, error) { return 0, errors.New("no encoding") }
func (failingTokenizer) Encode(string) ([]int, error)    { return nil, errors.New("no encoding") }
func (failingTokenizer) Decode([]int) (string, error)    { return "", errors.New("no encoding") }
func (failingTokenizer) Name() string                    { return "broken" }

func TestFallback_DegradesOnce(t *testing.T) {
	t.Parallel()

	f := NewFallback(failingTokenizer{})
	if got := f.Name(); got != "broken" {
		t.Fatalf("Name before degradation = %q", got)
	}

	n, err := f.CountTokens("hello world")
	if err != nil {
		t.Fatalf("CountTokens after primary failure: %v", err)
	}
	if n != 2 {
		t.Fatalf("CountTokens = %d, want estimator value 2", n)
	}

	// Degradation is sticky.
	if got := f.Name(); got != "estimator" {
		t.Fatalf("Name after degradation = %q", got)
	}
}

// runeTokenizer encodes one token per rune, with exact decode.
type runeTokenizer struct{}

func (runeTokenizer) CountTokens(text string) (int, error) { return len([]rune(text)), nil }

func (runeTokenizer) Encode(text string) ([]int, error) {
	runes := []rune(text)
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens, nil
}

func (runeTokenizer) Decode(tokens []int) (string, error) {
	runes := make([]rune, len(tokens))
	for i, tok := range tokens {
		runes[i] = rune(tok)
	}
	return string(runes), nil
}

func (runeTokenizer) Name() string { return "rune" }

func TestTruncate(t *testing.T) {
	t.Parallel()

	t.Run("within budget unchanged", func(t *testing.T) {
		t.Parallel()
		got, err := Truncate(runeTokenizer{}, "short", 10)
		if err != nil {
			t.Fatalf("Truncate: %v", err)
		}
		if got != "short" {
			t.Fatalf("Truncate = %q, want unchanged text", got)
		}
	})

	t.Run("exact decode path", func(t *testing.T) {
		t.Parallel()
		got, err := Truncate(runeTokenizer{}, "abcdefghij", 4)
		if err != nil {
			t.Fatalf("Truncate: %v", err)
		}
		if got != "abcd" {
			t.Fatalf("Truncate = %q, want %q", got, "abcd")
		}
	})

	t.Run("estimator proportional path", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("a", 40) // 10 estimated tokens
		got, err := Truncate(NewEstimator(), text, 5)
		if err != nil {
			t.Fatalf("Truncate: %v", err)
		}
		if len(got) != 20 {
			t.Fatalf("Truncate kept %d chars, want 20", len(got))
		}
	})

	t.Run("invalid budget", func(t *testing.T) {
		t.Parallel()
		if _, err := Truncate(runeTokenizer{}, "x", 0); err == nil {
			t.Fatal("expected error for non-positive budget")
		}
	})
}
