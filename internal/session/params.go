package session

import (
	"strings"

	"github.com/emberml/ember/internal/engine"
)

// Params are the sampling parameters for one generation call. A Params
// value is never mutated by the session.
type Params struct {
	Temperature   float64 // 0 selects greedy arg-max decoding
	TopK          int     // 0 disables
	TopP          float64 // (0,1]; 1 disables
	RepeatPenalty float64 // 1 disables
	PenaltyLastN  int

	// Seed fixes the sampling rng for reproducible output; nil draws a
	// fresh seed per call.
	Seed *int64

	// MaxTokens caps the number of emitted fragments; <= 0 generates
	// until a stop condition.
	MaxTokens int

	// Stop lists text sequences that end generation when produced. The
	// stop sequence itself is not emitted, but fragments already
	// delivered are never retracted.
	Stop []string

	// StopTokens lists token ids that end generation, in addition to
	// the model's EOS token.
	StopTokens []engine.Token
}

// DefaultParams returns the common llama-family generation defaults.
func DefaultParams() Params {
	return Params{
		Temperature:   0.8,
		TopK:          40,
		TopP:          0.95,
		RepeatPenalty: 1.1,
		PenaltyLastN:  64,
	}
}

// Message is one turn of a role-structured prompt.
type Message struct {
	Role    string
	Content string
}

// Prompt is the input for one generation call: plain text, or a
// role-structured message list rendered with a minimal chat shape.
// Consumed once, never mutated.
type Prompt struct {
	Text     string
	Messages []Message
}

// Render flattens the prompt into the text handed to the tokenizer.
func (p Prompt) Render() string {
	if len(p.Messages) == 0 {
		return p.Text
	}
	var sb strings.Builder
	for _, m := range p.Messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteByte('\n')
	}
	sb.WriteString("assistant:")
	return sb.String()
}
