package session

import (
	"context"
	"testing"
)

func TestTokensIteratorBreakCancelsStream(t *testing.T) {
	t.Parallel()

	replies := make([]string, 20)
	for i := range replies {
		replies[i] = "tok"
	}
	s, _ := newScripted(t, replies...)

	st, err := s.Generate(context.Background(), Prompt{Text: "hi"}, greedyParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	seen := 0
	for range st.Tokens() {
		seen++
		if seen == 2 {
			break
		}
	}
	<-st.Done()
	if st.State() != StateCancelled {
		t.Fatalf("breaking out of the range should cancel, got %v", st.State())
	}
	if st.Err() != nil {
		t.Fatalf("unexpected error: %v", st.Err())
	}
}

func TestStreamLifecycle(t *testing.T) {
	t.Parallel()

	s, _ := newScripted(t, "one", "two")
	st, err := s.Generate(context.Background(), Prompt{Text: "hi"}, greedyParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if st.State().Terminal() {
		t.Fatalf("fresh stream already terminal: %v", st.State())
	}
	if st.Err() != nil {
		t.Fatalf("Err before settling must be nil, got %v", st.Err())
	}
	if _, err := st.Text(); err != nil {
		t.Fatalf("stream: %v", err)
	}
	if !st.State().Terminal() {
		t.Fatalf("drained stream not terminal: %v", st.State())
	}
	if st.ID() == "" {
		t.Fatal("stream has no id")
	}

	// Next after the terminal state reports closed.
	if _, ok := st.Next(); ok {
		t.Fatal("Next returned a fragment after the stream settled")
	}
}

func TestCancelBeforeLoopStarts(t *testing.T) {
	t.Parallel()

	s, _ := newScripted(t, "a", "b")

	// Hold the worker on a first stream so the second is still queued
	// when we cancel it.
	first, err := s.Generate(context.Background(), Prompt{Text: "hi"}, greedyParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := s.Generate(context.Background(), Prompt{Text: "hi"}, greedyParams())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second.Cancel()

	first.Cancel()
	<-first.Done()
	<-second.Done()
	if second.State() != StateCancelled {
		t.Fatalf("expected cancelled, got %v", second.State())
	}
	if second.Err() != nil {
		t.Fatalf("unexpected error: %v", second.Err())
	}
}
