package session

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/emberml/ember/internal/engine/enginetest"
)

func norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestEmbedReturnsUnitVector(t *testing.T) {
	t.Parallel()

	eng := enginetest.New(8, 128)
	s := New(eng)
	defer s.Close()

	vec, err := s.Embed(context.Background(), "the quick brown fox")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 8 {
		t.Fatalf("expected 8 dimensions, got %d", len(vec))
	}
	if n := norm(vec); math.Abs(n-1) > 1e-6 {
		t.Fatalf("expected unit norm, got %v", n)
	}
}

func TestEmbedZeroVectorPassesThrough(t *testing.T) {
	t.Parallel()

	eng := enginetest.New(4, 128)
	eng.EmbedVec = make([]float32, 4)
	s := New(eng)
	defer s.Close()

	vec, err := s.Embed(context.Background(), "anything")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("zero vector changed at %d: %v", i, v)
		}
	}
}

func TestEmbedEmptyInputFailsTokenize(t *testing.T) {
	t.Parallel()

	eng := enginetest.New(4, 128)
	s := New(eng)
	defer s.Close()

	for _, text := range []string{"", "   \t\n"} {
		if _, err := s.Embed(context.Background(), text); !errors.Is(err, ErrTokenize) {
			t.Fatalf("input %q: expected ErrTokenize, got %v", text, err)
		}
	}
	if n := len(eng.Decodes()); n != 0 {
		t.Fatalf("empty input must not reach the engine, saw %d decodes", n)
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	t.Parallel()

	eng := enginetest.New(8, 128)
	eng.EmbedVec = make([]float32, 5)
	s := New(eng)
	defer s.Close()

	if _, err := s.Embed(context.Background(), "text"); !errors.Is(err, ErrEmbeddingDim) {
		t.Fatalf("expected ErrEmbeddingDim, got %v", err)
	}
}

func TestEmbedRestoresGenerationModeOnFailure(t *testing.T) {
	t.Parallel()

	eng := enginetest.New(8, 128)
	eng.Replies = eng.Intern("fine")
	eng.EmbeddingsErr = errors.New("pooling disabled")
	s := New(eng)
	defer s.Close()

	if _, err := s.Embed(context.Background(), "text"); !errors.Is(err, ErrEmbeddingExtract) {
		t.Fatalf("expected ErrEmbeddingExtract, got %v", err)
	}
	if eng.EmbeddingMode() {
		t.Fatal("engine left in embedding mode after failed extraction")
	}

	// Generation still works on the same session.
	eng.EmbeddingsErr = nil
	st, err := s.Generate(context.Background(), Prompt{Text: "hi"}, greedyParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text, err := st.Text(); err != nil || text != " fine" {
		t.Fatalf("generate after failed embed: text=%q err=%v", text, err)
	}
}

func TestEmbedRunsInEmbeddingMode(t *testing.T) {
	t.Parallel()

	eng := enginetest.New(8, 128)
	s := New(eng)
	defer s.Close()

	if _, err := s.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	decodes := eng.Decodes()
	if len(decodes) != 1 {
		t.Fatalf("expected one decode, got %d", len(decodes))
	}
	if !decodes[0].EmbeddingMode {
		t.Fatal("embedding decode ran in generation mode")
	}
	if eng.EmbeddingMode() {
		t.Fatal("engine left in embedding mode")
	}
}

func TestEmbedCancelledContext(t *testing.T) {
	t.Parallel()

	eng := enginetest.New(8, 128)
	s := New(eng)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Embed(ctx, "text"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
