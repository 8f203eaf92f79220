package session

import (
	"context"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is the lifecycle of one generation call.
type State int32

const (
	StateIdle State = iota
	StateGenerating
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is Completed, Cancelled or Failed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Stream is a cancellable sequence of text fragments from one
// generation call. One underlying decode loop feeds it; the pull API
// (Next, Tokens) and the push API (Forward) are adapters over the same
// loop, so the engine runs each decode exactly once no matter how the
// caller consumes.
//
// The fragment channel is unbuffered: with pull consumption the next
// decode happens only as the consumer advances. A stream must be
// consumed to a terminal state or cancelled; an abandoned stream keeps
// its session queue slot.
type Stream struct {
	id     string
	frags  chan string
	done   chan struct{}
	cancel context.CancelFunc
	state  atomic.Int32

	mu  sync.Mutex
	err error
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		id:     uuid.NewString(),
		frags:  make(chan string),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// ID identifies the stream for logging and API payloads.
func (st *Stream) ID() string { return st.id }

// State returns the current lifecycle state.
func (st *Stream) State() State { return State(st.state.Load()) }

// Err returns the terminal error, nil until the stream settles and nil
// for Completed and Cancelled streams.
func (st *Stream) Err() error {
	select {
	case <-st.done:
	default:
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.err
}

// Cancel requests cooperative cancellation. The decode loop observes it
// before its next engine call; fragments already emitted stand.
func (st *Stream) Cancel() { st.cancel() }

// Done is closed when the stream reaches a terminal state.
func (st *Stream) Done() <-chan struct{} { return st.done }

// Next pulls the next fragment. ok is false once the stream has
// settled; check Err and State afterwards.
func (st *Stream) Next() (frag string, ok bool) {
	select {
	case frag = <-st.frags:
		return frag, true
	case <-st.done:
		return "", false
	}
}

// Tokens returns a pull iterator over fragments. Breaking out of the
// range cancels the stream.
func (st *Stream) Tokens() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			frag, ok := st.Next()
			if !ok {
				return
			}
			if !yield(frag) {
				st.Cancel()
				return
			}
		}
	}
}

// Forward drains the stream in the background, pushing each fragment
// to sink as it is produced. Fragments are buffered so a slow sink does
// not stall the decode loop. The returned channel yields the terminal
// error (nil on completion or cancellation) exactly once.
func (st *Stream) Forward(sink func(fragment string)) <-chan error {
	buf := make(chan string, 256)
	errc := make(chan error, 1)
	go func() {
		defer close(buf)
		for {
			frag, ok := st.Next()
			if !ok {
				return
			}
			buf <- frag
		}
	}()
	go func() {
		for frag := range buf {
			sink(frag)
		}
		errc <- st.Err()
	}()
	return errc
}

// Text pulls the stream to completion and returns the concatenated
// output along with the terminal error.
func (st *Stream) Text() (string, error) {
	var sb strings.Builder
	for frag := range st.Tokens() {
		sb.WriteString(frag)
	}
	return sb.String(), st.Err()
}

// emit hands one fragment to the consumer. It returns false if the
// stream context is cancelled while waiting, in which case the
// fragment is dropped and the loop should settle as Cancelled.
func (st *Stream) emit(ctx context.Context, frag string) bool {
	select {
	case st.frags <- frag:
		return true
	case <-ctx.Done():
		return false
	}
}

func (st *Stream) setGenerating() {
	st.state.Store(int32(StateGenerating))
}

// settle records the terminal state and wakes all consumers. It must
// be called exactly once, by the decode loop.
func (st *Stream) settle(state State, err error) {
	st.mu.Lock()
	st.err = err
	st.mu.Unlock()
	st.state.Store(int32(state))
	close(st.done)
	st.cancel()
}
