package api

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

func sendSSE(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal sse event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return fmt.Errorf("write sse event: %w", err)
	}
	return nil
}
