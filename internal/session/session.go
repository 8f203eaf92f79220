// Package session arbitrates access to a single native inference
// context used in two mutually exclusive modes: streaming text
// generation and single-shot embedding extraction. All public
// operations pass through one logical queue, so exactly one operation
// touches the native context at a time and operations complete in the
// order they were accepted.
package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/emberml/ember/internal/engine"
	"github.com/emberml/ember/internal/logger"
	"github.com/emberml/ember/internal/sampler"
)

// queueDepth bounds how many operations may wait behind the one in
// flight before callers block in Generate/Embed.
const queueDepth = 32

// Session owns one loaded model and one mutable native context for its
// lifetime. It is safe for concurrent use; the context itself is only
// ever touched by the session worker.
type Session struct {
	eng engine.Engine
	log logger.Logger

	ops  chan func()
	quit chan struct{}
	idle chan struct{} // closed when the worker has drained

	closeOnce sync.Once
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. The default discards everything.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// New wraps an already-open engine. The session takes ownership and
// closes the engine when it is closed.
func New(eng engine.Engine, opts ...Option) *Session {
	s := &Session{
		eng:  eng,
		log:  logger.Nop(),
		ops:  make(chan func(), queueDepth),
		quit: make(chan struct{}),
		idle: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.work()
	return s
}

// Open loads the model at path through the registered engine driver
// and wraps it in a session.
func Open(path string, eopts engine.Options, opts ...Option) (*Session, error) {
	eng, err := engine.Open(path, eopts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	return New(eng, opts...), nil
}

// work executes queued operations one at a time, in acceptance order.
func (s *Session) work() {
	defer close(s.idle)
	for {
		select {
		case <-s.quit:
			return
		case op := <-s.ops:
			op()
		}
	}
}

func (s *Session) enqueue(ctx context.Context, op func()) error {
	select {
	case s.ops <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrModelNotLoaded
	}
}

// Close stops the worker after the in-flight operation finishes and
// releases the engine. Queued operations that never ran are abandoned;
// cancel outstanding streams first.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.idle
	return s.eng.Close()
}

// EmbeddingDim reports the model's declared embedding dimension. Model
// metadata is immutable and readable without entering the queue.
func (s *Session) EmbeddingDim() int { return s.eng.EmbeddingDim() }

// ContextLen reports the context length limit.
func (s *Session) ContextLen() int { return s.eng.ContextLen() }

// Generate starts a streaming generation call and returns its stream.
// The decode loop begins once the operation reaches the front of the
// queue; callers consume via the stream's pull or push API. Prompt
// tokenization and overflow failures surface on the stream.
func (s *Session) Generate(ctx context.Context, prompt Prompt, params Params) (*Stream, error) {
	genCtx, cancel := context.WithCancel(ctx)
	st := newStream(cancel)
	err := s.enqueue(genCtx, func() {
		s.runGenerate(genCtx, st, prompt, params)
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("generate: %w", err)
	}
	return st, nil
}

// Embed extracts an L2-normalized embedding vector for text. The call
// waits its turn in the queue and blocks until extraction finishes.
func (s *Session) Embed(ctx context.Context, text string) ([]float32, error) {
	type result struct {
		vec []float32
		err error
	}
	ch := make(chan result, 1)
	err := s.enqueue(ctx, func() {
		vec, err := s.extract(ctx, text)
		ch <- result{vec, err}
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("embed: %w", r.err)
		}
		return r.vec, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("embed: %w", ctx.Err())
	}
}

// runGenerate drives the decode → sample → emit loop on the session
// worker. Cancellation is cooperative: the flag is checked before each
// decode call, never mid-call.
func (s *Session) runGenerate(ctx context.Context, st *Stream, prompt Prompt, params Params) {
	st.setGenerating()

	fail := func(err error) {
		err = fmt.Errorf("generate: %w", err)
		s.log.Debug("generation failed", "stream", st.ID(), "error", err)
		st.settle(StateFailed, err)
	}

	if ctx.Err() != nil {
		st.settle(StateCancelled, nil)
		return
	}

	toks, err := s.eng.Tokenize(prompt.Render())
	if err != nil {
		fail(fmt.Errorf("%w: %v", ErrTokenize, err))
		return
	}
	if len(toks) == 0 {
		fail(fmt.Errorf("%w: prompt produced no tokens", ErrTokenize))
		return
	}
	limit := s.eng.ContextLen()
	if len(toks) > limit {
		// Rejected before any native state changes, so the session
		// stays healthy for the next call.
		fail(fmt.Errorf("%w: prompt is %d tokens, limit %d", ErrContextOverflow, len(toks), limit))
		return
	}

	smp := sampler.New(sampler.Config{
		Seed:          resolveSeed(params.Seed),
		Temperature:   params.Temperature,
		TopK:          params.TopK,
		TopP:          params.TopP,
		RepeatPenalty: params.RepeatPenalty,
		PenaltyLastN:  params.PenaltyLastN,
	})

	s.eng.ClearCache()
	pos := 0
	if err := s.decodeBatch(toks, pos); err != nil {
		fail(err)
		return
	}
	pos += len(toks)

	var acc strings.Builder
	produced := 0
	for {
		next := engine.Token(smp.Sample(s.eng.Logits()))
		if next == s.eng.EOS() || slices.Contains(params.StopTokens, next) {
			st.settle(StateCompleted, nil)
			return
		}

		frag := s.eng.Detokenize(next)
		frag, stopped := cutAtStop(&acc, frag, params.Stop)
		if frag != "" && !st.emit(ctx, frag) {
			st.settle(StateCancelled, nil)
			return
		}
		if stopped {
			st.settle(StateCompleted, nil)
			return
		}

		produced++
		if params.MaxTokens > 0 && produced >= params.MaxTokens {
			st.settle(StateCompleted, nil)
			return
		}
		if pos >= limit {
			// Context window exhausted; a natural stop.
			st.settle(StateCompleted, nil)
			return
		}
		if ctx.Err() != nil {
			st.settle(StateCancelled, nil)
			return
		}
		if err := s.decodeBatch([]engine.Token{next}, pos); err != nil {
			fail(err)
			return
		}
		pos++
	}
}

// cutAtStop appends frag to the accumulated output and scans for stop
// sequences, including ones spanning fragment boundaries. It returns
// the part of frag to emit and whether a stop sequence completed.
func cutAtStop(acc *strings.Builder, frag string, stops []string) (string, bool) {
	if len(stops) == 0 {
		acc.WriteString(frag)
		return frag, false
	}
	prev := acc.Len()
	acc.WriteString(frag)
	text := acc.String()
	for _, stop := range stops {
		if stop == "" {
			continue
		}
		from := prev - len(stop) + 1
		if from < 0 {
			from = 0
		}
		if i := strings.Index(text[from:], stop); i >= 0 {
			cut := from + i
			if cut <= prev {
				return "", true
			}
			return text[prev:cut], true
		}
	}
	return frag, false
}

func resolveSeed(seed *int64) int64 {
	if seed != nil {
		return *seed
	}
	return time.Now().UnixNano()
}
