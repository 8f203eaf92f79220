// Package enginetest provides a deterministic in-memory engine for
// exercising the session layer without a native backend. Tokenization
// is whitespace word splitting over a growable vocabulary, generation
// follows a scripted reply sequence, and embeddings are bag-of-words
// count vectors, so every observable output is reproducible.
package enginetest

import (
	"errors"
	"strings"
	"sync"

	"github.com/emberml/ember/internal/engine"
)

// DecodeCall records one Decode invocation for assertions.
type DecodeCall struct {
	Tokens        []engine.Token
	Pos           int
	EmbeddingMode bool
}

// Engine is a scripted engine.Engine. The zero value is not usable;
// construct with New.
type Engine struct {
	// Replies is the token sequence generation should produce, in
	// order. Once exhausted the engine steers toward EOS.
	Replies []engine.Token

	// TokenizeErr, DecodeErr and EmbeddingsErr inject failures.
	TokenizeErr   error
	DecodeErr     error
	FailDecodeAt  int // 1-based decode index to fail at; 0 disables
	EmbeddingsErr error

	// EmbedVec overrides the bag-of-words embedding when non-nil.
	EmbedVec []float32

	mu          sync.Mutex
	vocab       []string
	index       map[string]engine.Token
	dim         int
	ctxLen      int
	mode        bool
	decoded     bool
	decodes     []DecodeCall
	logitsCalls int
	lastBatch   []engine.Token
	closed      bool
}

// New builds an engine with the given embedding dimension and context
// length. Token id 0 is reserved for EOS.
func New(dim, ctxLen int) *Engine {
	e := &Engine{
		dim:    dim,
		ctxLen: ctxLen,
		index:  make(map[string]engine.Token),
	}
	e.intern("</s>")
	return e
}

func (e *Engine) intern(word string) engine.Token {
	if id, ok := e.index[word]; ok {
		return id
	}
	id := engine.Token(len(e.vocab))
	e.vocab = append(e.vocab, word)
	e.index[word] = id
	return id
}

// Intern maps words to token ids, growing the vocabulary as needed.
// Useful for pre-building Replies scripts.
func (e *Engine) Intern(words ...string) []engine.Token {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]engine.Token, len(words))
	for i, w := range words {
		ids[i] = e.intern(w)
	}
	return ids
}

func (e *Engine) Tokenize(text string) ([]engine.Token, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.TokenizeErr != nil {
		return nil, e.TokenizeErr
	}
	words := strings.Fields(text)
	ids := make([]engine.Token, 0, len(words))
	for _, w := range words {
		ids = append(ids, e.intern(w))
	}
	return ids, nil
}

func (e *Engine) Detokenize(tok engine.Token) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(tok) < 0 || int(tok) >= len(e.vocab) {
		return ""
	}
	if tok == 0 {
		return ""
	}
	return " " + e.vocab[tok]
}

func (e *Engine) Decode(b *engine.Batch) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b.Freed() {
		return errors.New("decode on freed batch")
	}
	call := DecodeCall{
		Tokens:        append([]engine.Token(nil), b.Tokens...),
		Pos:           b.Pos,
		EmbeddingMode: e.mode,
	}
	e.decodes = append(e.decodes, call)
	if e.DecodeErr != nil && (e.FailDecodeAt == 0 || e.FailDecodeAt == len(e.decodes)) {
		return e.DecodeErr
	}
	e.decoded = true
	e.lastBatch = call.Tokens
	return nil
}

// Logits favors the next scripted reply token; after the script is
// exhausted it favors EOS. Each call advances the script position,
// matching one sample per decode loop iteration.
func (e *Engine) Logits() []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]float32, len(e.vocab))
	for i := range out {
		out[i] = -10
	}
	want := engine.Token(0)
	if e.logitsCalls < len(e.Replies) {
		want = e.Replies[e.logitsCalls]
	}
	e.logitsCalls++
	if int(want) < len(out) {
		out[want] = 10
	}
	return out
}

func (e *Engine) Embeddings() ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.EmbeddingsErr != nil {
		return nil, e.EmbeddingsErr
	}
	if !e.mode {
		return nil, errors.New("embeddings requested outside embedding mode")
	}
	if !e.decoded {
		return nil, errors.New("embeddings requested before decode")
	}
	if e.EmbedVec != nil {
		return append([]float32(nil), e.EmbedVec...), nil
	}
	vec := make([]float32, e.dim)
	for _, tok := range e.lastBatch {
		vec[int(tok)%e.dim]++
	}
	return vec, nil
}

func (e *Engine) SetEmbeddingMode(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = on
}

func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.decoded = false
	e.logitsCalls = 0
	e.lastBatch = nil
}

func (e *Engine) EmbeddingDim() int { return e.dim }

func (e *Engine) ContextLen() int { return e.ctxLen }

func (e *Engine) EOS() engine.Token { return 0 }

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// EmbeddingMode reports the current mode for assertions.
func (e *Engine) EmbeddingMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Decodes returns a copy of all recorded decode calls.
func (e *Engine) Decodes() []DecodeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]DecodeCall(nil), e.decodes...)
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
