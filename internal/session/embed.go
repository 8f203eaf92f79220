package session

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// extract runs one embedding extraction on the session worker. The
// context is switched to embedding mode for the duration and restored
// unconditionally; the generation sequence position is untouched
// because the cache is cleared on the way out.
//
// Empty or whitespace-only input fails with ErrTokenize rather than
// producing a defined embedding.
func (s *Session) extract(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrTokenize)
	}
	toks, err := s.eng.Tokenize(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenize, err)
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("%w: input produced no tokens", ErrTokenize)
	}

	restore := s.enterEmbedding()
	defer restore()

	s.eng.ClearCache()
	if err := s.decodeBatch(toks, 0); err != nil {
		return nil, err
	}

	vec, err := s.eng.Embeddings()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingExtract, err)
	}
	if dim := s.eng.EmbeddingDim(); len(vec) != dim {
		return nil, fmt.Errorf("%w: engine returned %d values, model declares %d",
			ErrEmbeddingDim, len(vec), dim)
	}
	normalize(vec)
	return vec, nil
}

// normalize scales v to unit L2 norm in place. The zero vector has no
// direction and is returned unchanged.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
