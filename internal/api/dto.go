package api

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"

	"github.com/emberml/ember/internal/session"
)

// GenerateRequest is the body of POST /v1/generate. Prompt and Messages
// are mutually exclusive; nil sampling fields fall back to the server
// defaults.
type GenerateRequest struct {
	Prompt   string        `json:"prompt,omitempty"`
	Messages []ChatMessage `json:"messages,omitempty"`

	Temperature   *float64 `json:"temperature,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	TopP          *float64 `json:"top_p,omitempty"`
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"`
	PenaltyLastN  *int     `json:"penalty_last_n,omitempty"`
	Seed          *int64   `json:"seed,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	Stop          *Strings `json:"stop,omitempty"`
	Stream        *bool    `json:"stream,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateResponse is the non-streaming reply.
type GenerateResponse struct {
	ID           string `json:"id"`
	Object       string `json:"object"`
	Created      int64  `json:"created"`
	Model        string `json:"model"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

// GenerateChunk is one SSE event of a streaming reply. The final chunk
// carries an empty delta and a finish_reason.
type GenerateChunk struct {
	ID           string `json:"id"`
	Object       string `json:"object"`
	Created      int64  `json:"created"`
	Model        string `json:"model"`
	Delta        string `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// EmbeddingsRequest is the body of POST /v1/embeddings. Input is a
// string or an array of strings.
type EmbeddingsRequest struct {
	Input Strings `json:"input"`
}

type EmbeddingsResponse struct {
	Object string      `json:"object"`
	Model  string      `json:"model"`
	Data   []Embedding `json:"data"`
}

type Embedding struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// Strings decodes a JSON string or array of strings.
type Strings []string

func (s *Strings) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*s = nil
		return nil
	}
	switch b[0] {
	case '"':
		var one string
		if err := json.Unmarshal(b, &one); err != nil {
			return fmt.Errorf("strings: %w", err)
		}
		*s = Strings{one}
		return nil
	case '[':
		var many []string
		if err := json.Unmarshal(b, &many); err != nil {
			return fmt.Errorf("strings: %w", err)
		}
		*s = Strings(many)
		return nil
	default:
		return fmt.Errorf("strings: expected string or array")
	}
}

func (s Strings) MarshalJSON() ([]byte, error) {
	return json.Marshal([]string(s))
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var v T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("invalid JSON body: %w", err)
	}
	return v, nil
}

// prompt converts the request into a session prompt.
func (r GenerateRequest) prompt() session.Prompt {
	if len(r.Messages) > 0 {
		msgs := make([]session.Message, len(r.Messages))
		for i, m := range r.Messages {
			msgs[i] = session.Message{Role: m.Role, Content: m.Content}
		}
		return session.Prompt{Messages: msgs}
	}
	return session.Prompt{Text: r.Prompt}
}

// params overlays the request's sampling fields on the defaults.
func (r GenerateRequest) params(defaults session.Params) session.Params {
	p := defaults
	if r.Temperature != nil {
		p.Temperature = *r.Temperature
	}
	if r.TopK != nil {
		p.TopK = *r.TopK
	}
	if r.TopP != nil {
		p.TopP = *r.TopP
	}
	if r.RepeatPenalty != nil {
		p.RepeatPenalty = *r.RepeatPenalty
	}
	if r.PenaltyLastN != nil {
		p.PenaltyLastN = *r.PenaltyLastN
	}
	if r.Seed != nil {
		p.Seed = r.Seed
	}
	if r.MaxTokens != nil {
		p.MaxTokens = *r.MaxTokens
	}
	if r.Stop != nil {
		p.Stop = []string(*r.Stop)
	}
	return p
}
