package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/emberml/ember/internal/engine/enginetest"
	"github.com/emberml/ember/internal/session"
)

func newTestEcho(t *testing.T, eng *enginetest.Engine) *echo.Echo {
	t.Helper()
	sess := session.New(eng)
	t.Cleanup(func() { _ = sess.Close() })
	server := NewServer(sess, "ember-test",
		WithDefaults(session.Params{Temperature: 0, TopP: 1}))
	e := echo.New()
	server.Register(e)
	return e
}

func scriptedEngine(replies ...string) *enginetest.Engine {
	eng := enginetest.New(8, 128)
	eng.Replies = eng.Intern(replies...)
	return eng
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGenerateSync(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, scriptedEngine("hello", "there"))
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}

	var resp GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != " hello there" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.FinishReason != "stop" {
		t.Fatalf("unexpected finish_reason %q", resp.FinishReason)
	}
	if resp.Object != "generation" || !strings.HasPrefix(resp.ID, "gen-") {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
}

func TestGenerateStreamSSE(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, scriptedEngine("one", "two"))
	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"hi","stream":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type %q", ct)
	}

	body := rec.Body.String()
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Fatalf("missing DONE terminator:\n%s", body)
	}

	var deltas []string
	finish := ""
	for _, line := range strings.Split(body, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok || payload == "[DONE]" {
			continue
		}
		var chunk GenerateChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			t.Fatalf("decode chunk %q: %v", payload, err)
		}
		if chunk.Delta != "" {
			deltas = append(deltas, chunk.Delta)
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	if got := strings.Join(deltas, ""); got != " one two" {
		t.Fatalf("unexpected deltas %q", got)
	}
	if finish != "stop" {
		t.Fatalf("unexpected finish_reason %q", finish)
	}
}

func TestGenerateValidatesBody(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, scriptedEngine("x"))
	cases := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"both prompt and messages", `{"prompt":"a","messages":[{"role":"user","content":"b"}]}`},
		{"malformed json", `{"prompt":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, e, http.MethodPost, "/v1/generate", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGenerateWithMessages(t *testing.T) {
	t.Parallel()

	eng := scriptedEngine("sure")
	e := newTestEcho(t, eng)
	rec := doJSON(t, e, http.MethodPost, "/v1/generate",
		`{"messages":[{"role":"user","content":"say yes"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var resp GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Text != " sure" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}

func TestGenerateContextOverflowIs413(t *testing.T) {
	t.Parallel()

	eng := enginetest.New(8, 4)
	e := newTestEcho(t, eng)
	rec := doJSON(t, e, http.MethodPost, "/v1/generate",
		`{"prompt":"one two three four five six"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestEmbeddings(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, enginetest.New(8, 128))
	rec := doJSON(t, e, http.MethodPost, "/v1/embeddings",
		`{"input":["first text","second text"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}

	var resp EmbeddingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(resp.Data))
	}
	for i, d := range resp.Data {
		if d.Index != i {
			t.Fatalf("vector %d has index %d", i, d.Index)
		}
		if len(d.Embedding) != 8 {
			t.Fatalf("vector %d has %d dimensions", i, len(d.Embedding))
		}
	}
}

func TestEmbeddingsAcceptsSingleString(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, enginetest.New(8, 128))
	rec := doJSON(t, e, http.MethodPost, "/v1/embeddings", `{"input":"just one"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var resp EmbeddingsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(resp.Data))
	}
}

func TestEmbeddingsEmptyInputIs400(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, enginetest.New(8, 128))
	for _, body := range []string{`{}`, `{"input":[]}`, `{"input":"   "}`} {
		rec := doJSON(t, e, http.MethodPost, "/v1/embeddings", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status %d resp=%s", body, rec.Code, rec.Body.String())
		}
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, enginetest.New(16, 64))
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["status"] != "ok" || got["model"] != "ember-test" {
		t.Fatalf("unexpected payload: %v", got)
	}
	if got["embedding_dim"] != float64(16) || got["context_len"] != float64(64) {
		t.Fatalf("unexpected model shape: %v", got)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, enginetest.New(8, 128))
	e.Use(RateLimit(1, 1))

	first := doJSON(t, e, http.MethodGet, "/healthz", "")
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status %d", first.Code)
	}
	second := doJSON(t, e, http.MethodGet, "/healthz", "")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status %d body=%s", second.Code, second.Body.String())
	}
}
