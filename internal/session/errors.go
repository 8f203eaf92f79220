package session

import "errors"

// Every failure crossing the session boundary wraps one of these
// sentinels; native engine errors are attached as diagnostic text, never
// surfaced verbatim.
var (
	// ErrModelLoad reports that the model could not be loaded at
	// construction; the session is unusable.
	ErrModelLoad = errors.New("model load failed")

	// ErrModelNotLoaded reports an operation on a session without a
	// usable engine (never constructed, or already closed).
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrTokenize reports that input text could not be tokenized. Local
	// to one call; the session remains usable.
	ErrTokenize = errors.New("tokenization failed")

	// ErrContextOverflow reports a token sequence exceeding the
	// context length limit. Local and non-fatal.
	ErrContextOverflow = errors.New("context length exceeded")

	// ErrDecode reports an engine-internal decode failure. The in-flight
	// operation aborts; the session remains usable.
	ErrDecode = errors.New("decode failed")

	// ErrEmbeddingExtract reports an engine failure while reading back
	// an embedding vector.
	ErrEmbeddingExtract = errors.New("embedding extraction failed")

	// ErrEmbeddingDim reports that the engine returned a vector whose
	// length differs from the model's declared embedding dimension,
	// usually meaning a non-embedding model was loaded.
	ErrEmbeddingDim = errors.New("unexpected embedding dimension")
)
