package embedding

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	a := []float32{0.5, 0.25, 0.8}
	sim, err := CosineSimilarity(a, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("similarity of identical vectors = %v, want 1.0", sim)
	}
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(sim) > 1e-9 {
		t.Errorf("similarity of orthogonal vectors = %v, want 0.0", sim)
	}
}

func TestCosineSimilarityOpposite(t *testing.T) {
	a := []float32{1, 2}
	b := []float32{-1, -2}
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(sim+1.0) > 1e-9 {
		t.Errorf("similarity = %v, want -1.0", sim)
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	if _, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); err == nil {
		t.Error("expected error on dimension mismatch")
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	if _, err := CosineSimilarity([]float32{0, 0}, []float32{1, 2}); err == nil {
		t.Error("expected error for zero-magnitude vector, not NaN")
	}
	if _, err := CosineSimilarity(nil, nil); err == nil {
		t.Error("expected error for zero-length vectors")
	}
}

func TestTruncate(t *testing.T) {
	short := "hello"
	if got := Truncate(short); got != short {
		t.Errorf("short text must pass through, got %q", got)
	}

	long := strings.Repeat("x", MaxInputChars+500)
	got := Truncate(long)
	if len(got) != MaxInputChars {
		t.Errorf("truncated length = %d, want %d", len(got), MaxInputChars)
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	// Place a three-byte rune straddling the ceiling so a naive byte slice
	// would split it.
	long := strings.Repeat("x", MaxInputChars-1) + strings.Repeat("日", 200)
	got := Truncate(long)
	if !utf8.ValidString(got) {
		t.Errorf("truncated text is not valid UTF-8")
	}
	if len(got) > MaxInputChars {
		t.Errorf("truncated length = %d, want <= %d", len(got), MaxInputChars)
	}
}
