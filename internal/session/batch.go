package session

import (
	"fmt"

	"github.com/emberml/ember/internal/engine"
)

// decodeBatch runs one forward pass: it acquires a transient batch for
// tokens at sequence position pos, submits it, and frees it on every
// exit path. Token counts are capped at the model's context length
// before any native state is touched.
func (s *Session) decodeBatch(tokens []engine.Token, pos int) error {
	if limit := s.eng.ContextLen(); pos+len(tokens) > limit {
		return fmt.Errorf("%w: %d tokens at position %d, limit %d",
			ErrContextOverflow, len(tokens), pos, limit)
	}
	b := engine.NewBatch(tokens, pos)
	defer b.Free()
	if err := s.eng.Decode(b); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}
