// Package engine defines the capability surface ember requires from a
// native inference engine: tokenization, batched decoding, logit and
// embedding readback, and mode control. The heavy lifting (weights,
// forward pass, KV cache) lives behind this boundary; concrete drivers
// register themselves via SetOpener, typically from a build-tagged init.
package engine

import (
	"errors"
	"fmt"
)

// Token is a vocabulary id as understood by the engine's tokenizer.
type Token = int32

// Engine is one loaded model plus one mutable native context. It is not
// safe for concurrent use; callers must serialize access (the session
// layer does this).
type Engine interface {
	// Tokenize converts text to token ids using the model vocabulary.
	Tokenize(text string) ([]Token, error)

	// Detokenize returns the text fragment for a single token id.
	Detokenize(tok Token) string

	// Decode submits one batch for a forward pass, advancing the
	// context's KV cache. The batch remains owned by the caller.
	Decode(b *Batch) error

	// Logits returns the raw scores for the last decoded position.
	// The returned slice is only valid until the next Decode call.
	Logits() []float32

	// Embeddings returns the pooled embedding vector for the last
	// decoded batch. Valid only in embedding mode, after a Decode.
	Embeddings() ([]float32, error)

	// SetEmbeddingMode toggles the context between generation and
	// embedding usage.
	SetEmbeddingMode(on bool)

	// ClearCache resets the KV cache and sequence position to zero.
	ClearCache()

	// EmbeddingDim reports the model's declared embedding dimension.
	EmbeddingDim() int

	// ContextLen reports the maximum sequence length the context holds.
	ContextLen() int

	// EOS reports the end-of-sequence token id, or a negative value if
	// the model declares none.
	EOS() Token

	Close() error
}

// Options configures context creation when opening a model.
type Options struct {
	ContextLen int // 0 means the driver default
	Threads    int
	GPULayers  int
}

// OpenFunc loads a model file and creates a native context for it.
type OpenFunc func(path string, opts Options) (Engine, error)

// ErrNoDriver is returned by Open when no native driver is linked into
// the binary.
var ErrNoDriver = errors.New("no engine driver registered (build with a driver tag, e.g. -tags llama)")

var opener OpenFunc

// SetOpener registers the process-wide engine driver. Drivers call this
// from an init function guarded by a build tag.
func SetOpener(fn OpenFunc) {
	opener = fn
}

// Open loads the model at path through the registered driver.
func Open(path string, opts Options) (Engine, error) {
	if opener == nil {
		return nil, ErrNoDriver
	}
	eng, err := opener(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return eng, nil
}
