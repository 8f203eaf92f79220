package session

// The native context is used in two mutually exclusive modes. The
// default is generation; embedding extraction borrows the context and
// must hand it back in generation mode with a clean cache before the
// next queued operation can observe it.

// enterEmbedding switches the context into embedding mode and returns
// the restore function. Callers defer the restore immediately so the
// context is back in generation mode on every exit path, including
// failed extractions.
func (s *Session) enterEmbedding() (restore func()) {
	s.eng.SetEmbeddingMode(true)
	return func() {
		s.eng.SetEmbeddingMode(false)
		s.eng.ClearCache()
	}
}
