package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Yuikij/japanesename/internal/gemini"
	"github.com/Yuikij/japanesename/internal/httputil"
	"github.com/Yuikij/japanesename/internal/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLimiter(limit int) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.NewMemoryStore(), limit, time.Minute, testLogger())
}

func newChatTestHandler(t *testing.T, upstream http.HandlerFunc, limit int) (*ChatHandler, func()) {
	t.Helper()
	server := httptest.NewServer(upstream)
	h := NewChatHandler(
		NewAllowlist("https://ok.com", false),
		testLimiter(limit),
		gemini.NewKeyPool("key-1"),
		server.URL,
		testLogger(),
	)
	return h, server.Close
}

func postChat(h *ChatHandler, origin, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorEnvelope {
	t.Helper()
	var envelope httputil.ErrorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error envelope from %q: %v", w.Body.String(), err)
	}
	return envelope
}

const validBody = `{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`

func TestChatMethodGating(t *testing.T) {
	h, cleanup := newChatTestHandler(t, func(w http.ResponseWriter, r *http.Request) {}, 10)
	defer cleanup()

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		r := httptest.NewRequest(method, "/api/chat", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: status = %d, want 405", method, w.Code)
		}
		envelope := decodeEnvelope(t, w)
		if envelope.Error.Status != http.StatusMethodNotAllowed || envelope.Error.Message == "" {
			t.Errorf("%s: envelope = %+v", method, envelope)
		}
	}
}

func TestChatOptions(t *testing.T) {
	h, cleanup := newChatTestHandler(t, func(w http.ResponseWriter, r *http.Request) {}, 10)
	defer cleanup()

	r := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("Access-Control-Max-Age") != "86400" {
		t.Errorf("Max-Age = %q", w.Header().Get("Access-Control-Max-Age"))
	}
}

func TestChatDeniesBadOrigin(t *testing.T) {
	upstreamHit := false
	h, cleanup := newChatTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		upstreamHit = true
	}, 10)
	defer cleanup()

	w := postChat(h, "https://evil.com", validBody)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if envelope := decodeEnvelope(t, w); envelope.Error.Message != "Access denied" {
		t.Errorf("message = %q", envelope.Error.Message)
	}
	if upstreamHit {
		t.Error("denied request must not reach the upstream")
	}
}

func TestChatValidatesContents(t *testing.T) {
	upstreamCalls := 0
	h, cleanup := newChatTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls++
	}, 10)
	defer cleanup()

	tests := []struct {
		name string
		body string
	}{
		{"missing contents", `{}`},
		{"contents not array", `{"contents":"nope"}`},
		{"empty contents", `{"contents":[]}`},
		{"invalid json", `{notjson`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postChat(h, "https://ok.com", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			decodeEnvelope(t, w)
		})
	}
	if upstreamCalls != 0 {
		t.Errorf("invalid requests reached the upstream %d times", upstreamCalls)
	}
}

func TestChatRateLimit(t *testing.T) {
	h, cleanup := newChatTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}, 2)
	defer cleanup()

	for i := 0; i < 2; i++ {
		if w := postChat(h, "https://ok.com", validBody); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, w.Code)
		}
	}

	w := postChat(h, "https://ok.com", validBody)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if envelope := decodeEnvelope(t, w); envelope.Error.Message != "Rate limit exceeded" {
		t.Errorf("message = %q", envelope.Error.Message)
	}
}

func TestChatForwardsWithDefaultsAndRelaysVerbatim(t *testing.T) {
	upstreamBody := `{"candidates":[{"content":{"parts":[{"text":"hi"}]},"finishReason":"STOP"}],"usageMetadata":{"totalTokenCount":12}}`
	var captured struct {
		query     string
		userAgent string
		body      []byte
	}
	h, cleanup := newChatTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		captured.query = r.URL.Query().Get("key")
		captured.userAgent = r.Header.Get("User-Agent")
		captured.body, _ = io.ReadAll(r.Body)
		w.Write([]byte(upstreamBody))
	}, 10)
	defer cleanup()

	w := postChat(h, "https://ok.com", `{"contents":[{"parts":[{"text":"hello"}]}],"generationConfig":{"temperature":0.3}}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	// Unknown upstream fields like usageMetadata survive: verbatim relay.
	if w.Body.String() != upstreamBody {
		t.Errorf("body not relayed verbatim:\n got %s\nwant %s", w.Body.String(), upstreamBody)
	}
	if w.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q", w.Header().Get("Cache-Control"))
	}

	if captured.query != "key-1" {
		t.Errorf("upstream key = %q", captured.query)
	}
	if captured.userAgent != gatewayUA {
		t.Errorf("User-Agent = %q", captured.userAgent)
	}

	var forwarded upstreamChatRequest
	if err := json.Unmarshal(captured.body, &forwarded); err != nil {
		t.Fatalf("decoding forwarded body: %v", err)
	}
	cfg := decodeGenerationConfig(t, forwarded.GenerationConfig)
	if cfg["temperature"] != 0.3 {
		t.Errorf("temperature = %v, want caller value", cfg["temperature"])
	}
	if cfg["maxOutputTokens"] != float64(chatMaxOutputTokens) || cfg["topP"] != chatTopP || cfg["topK"] != float64(chatTopK) {
		t.Errorf("defaults not merged: %v", cfg)
	}
	if len(forwarded.SafetySettings) != 4 {
		t.Errorf("safety settings = %d, want defaults", len(forwarded.SafetySettings))
	}
}

// The generation config is relayed raw: an explicit zero must not be mistaken
// for "unset", and fields the gateway does not model must reach the upstream.
func TestChatRelaysExplicitZeroAndUnmodeledConfigFields(t *testing.T) {
	var captured []byte
	h, cleanup := newChatTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"candidates":[]}`))
	}, 10)
	defer cleanup()

	w := postChat(h, "https://ok.com",
		`{"contents":[{"parts":[{"text":"hello"}]}],"generationConfig":{"temperature":0,"stopSequences":["END"]}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var forwarded upstreamChatRequest
	if err := json.Unmarshal(captured, &forwarded); err != nil {
		t.Fatalf("decoding forwarded body: %v", err)
	}
	cfg := decodeGenerationConfig(t, forwarded.GenerationConfig)
	if cfg["temperature"] != 0.0 {
		t.Errorf("temperature = %v, want the caller's explicit zero", cfg["temperature"])
	}
	stops, ok := cfg["stopSequences"].([]any)
	if !ok || len(stops) != 1 || stops[0] != "END" {
		t.Errorf("stopSequences = %v, want the caller's value relayed", cfg["stopSequences"])
	}
	if cfg["maxOutputTokens"] != float64(chatMaxOutputTokens) || cfg["topP"] != chatTopP || cfg["topK"] != float64(chatTopK) {
		t.Errorf("absent defaults not filled: %v", cfg)
	}
}

func decodeGenerationConfig(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("decoding forwarded generationConfig: %v", err)
	}
	return cfg
}

func TestChatRelaysUpstreamErrorAsEnvelope(t *testing.T) {
	h, cleanup := newChatTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"model overloaded","code":503}}`))
	}, 10)
	defer cleanup()

	w := postChat(h, "https://ok.com", validBody)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	envelope := decodeEnvelope(t, w)
	if envelope.Error.Message != "model overloaded" || envelope.Error.Status != http.StatusServiceUnavailable {
		t.Errorf("envelope = %+v", envelope)
	}
}

func TestChatNoKeyConfigured(t *testing.T) {
	h := NewChatHandler(
		NewAllowlist("https://ok.com", false),
		testLimiter(10),
		gemini.NewKeyPool(""),
		"http://unused",
		testLogger(),
	)

	w := postChat(h, "https://ok.com", validBody)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if envelope := decodeEnvelope(t, w); envelope.Error.Message != "LLM API key not configured" {
		t.Errorf("message = %q", envelope.Error.Message)
	}
}
