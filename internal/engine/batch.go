package engine

// Batch is a transient unit of work for one forward pass: a run of
// tokens placed at consecutive positions starting at Pos. A batch is
// acquired immediately before a Decode call and freed immediately
// after, on every exit path.
type Batch struct {
	Tokens []Token
	Pos    int

	freed bool
}

// NewBatch builds a batch for the given tokens at sequence position pos.
func NewBatch(tokens []Token, pos int) *Batch {
	return &Batch{Tokens: tokens, Pos: pos}
}

// Len reports the number of tokens in the batch.
func (b *Batch) Len() int { return len(b.Tokens) }

// Free releases the batch. Freeing twice is a no-op.
func (b *Batch) Free() {
	b.Tokens = nil
	b.freed = true
}

// Freed reports whether Free has been called.
func (b *Batch) Freed() bool { return b.freed }
