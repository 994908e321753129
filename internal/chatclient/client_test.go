package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Yuikij/japanesename/internal/domain"
	"github.com/Yuikij/japanesename/internal/gemini"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUpstream records each generateContent request and answers with a
// fixed text candidate.
type fakeUpstream struct {
	mu       sync.Mutex
	requests []gemini.GenerateContentRequest
	keys     []string
	status   int
	body     string
}

func (f *fakeUpstream) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req gemini.GenerateContentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding upstream request: %v", err)
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.keys = append(f.keys, r.URL.Query().Get("key"))
		f.mu.Unlock()

		status := f.status
		if status == 0 {
			status = http.StatusOK
		}
		body := f.body
		if body == "" {
			body = `{"candidates":[{"content":{"parts":[{"text":"hello there"}]}}]}`
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func newTestClient(t *testing.T, upstream *fakeUpstream) (*Client, func()) {
	t.Helper()
	server := httptest.NewServer(upstream.handler(t))
	client := New(server.URL, gemini.NewKeyPool("test-key"), testLogger())
	return client, server.Close
}

func TestSendMessageKeepsHistoryPerConversation(t *testing.T) {
	upstream := &fakeUpstream{}
	client, cleanup := newTestClient(t, upstream)
	defer cleanup()
	ctx := context.Background()

	if _, err := client.SendMessage(ctx, "first", "conv-a", nil); err != nil {
		t.Fatalf("SendMessage(first): %v", err)
	}
	if _, err := client.SendMessage(ctx, "second", "conv-a", nil); err != nil {
		t.Fatalf("SendMessage(second): %v", err)
	}
	if _, err := client.SendMessage(ctx, "other", "conv-b", nil); err != nil {
		t.Fatalf("SendMessage(other): %v", err)
	}

	// The second conv-a call must carry the full prior history.
	upstream.mu.Lock()
	second := upstream.requests[1]
	other := upstream.requests[2]
	upstream.mu.Unlock()

	if len(second.Contents) != 3 {
		t.Fatalf("second request contents = %d turns, want 3 (user, model, user)", len(second.Contents))
	}
	if second.Contents[0].Parts[0].Text != "first" || second.Contents[1].Role != "model" {
		t.Errorf("unexpected history: %+v", second.Contents)
	}
	if len(other.Contents) != 1 {
		t.Errorf("conv-b must not see conv-a history, got %d turns", len(other.Contents))
	}

	summary, ok := client.ConversationSummary("conv-a")
	if !ok || summary.Turns != 4 {
		t.Errorf("summary = %+v ok=%v, want 4 turns", summary, ok)
	}
}

func TestSendMessageAppliesDefaultsAndOverrides(t *testing.T) {
	upstream := &fakeUpstream{}
	client, cleanup := newTestClient(t, upstream)
	defer cleanup()

	if _, err := client.SendMessage(context.Background(), "hi", "conv", &gemini.GenerationConfig{
		Temperature: 0.9,
	}); err != nil {
		t.Fatalf("SendMessage(): %v", err)
	}

	upstream.mu.Lock()
	req := upstream.requests[0]
	key := upstream.keys[0]
	upstream.mu.Unlock()

	if key != "test-key" {
		t.Errorf("key = %q", key)
	}
	cfg := req.GenerationConfig
	if cfg.Temperature != 0.9 {
		t.Errorf("temperature = %v, want caller override", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != defaultMaxOutputTokens || cfg.TopP != defaultTopP || cfg.TopK != defaultTopK {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if len(req.SafetySettings) != 4 {
		t.Errorf("safety settings = %d, want 4", len(req.SafetySettings))
	}
}

func TestSendMessageUpstreamError(t *testing.T) {
	upstream := &fakeUpstream{
		status: http.StatusTooManyRequests,
		body:   `{"error":{"message":"quota exhausted","code":429}}`,
	}
	client, cleanup := newTestClient(t, upstream)
	defer cleanup()

	_, err := client.SendMessage(context.Background(), "hi", "conv", nil)
	if !errors.Is(err, domain.ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}
	var upstreamErr *domain.UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("error = %T, want *domain.UpstreamError", err)
	}
	if upstreamErr.Status != http.StatusTooManyRequests || upstreamErr.Message != "quota exhausted" {
		t.Errorf("upstream error = %+v", upstreamErr)
	}

	// The failed exchange must not pollute the history.
	if _, ok := client.ConversationSummary("conv"); ok {
		t.Error("failed call should leave no history")
	}
}

func TestSendMessageNoCandidateText(t *testing.T) {
	upstream := &fakeUpstream{body: `{"candidates":[]}`}
	client, cleanup := newTestClient(t, upstream)
	defer cleanup()

	if _, err := client.SendMessage(context.Background(), "hi", "conv", nil); !errors.Is(err, domain.ErrResponseShape) {
		t.Errorf("error = %v, want ErrResponseShape", err)
	}
}

func TestSendMessageNoKeyConfigured(t *testing.T) {
	client := New("http://unused", gemini.NewKeyPool(""), testLogger())
	if _, err := client.SendMessage(context.Background(), "hi", "conv", nil); !errors.Is(err, domain.ErrNoCredential) {
		t.Errorf("error = %v, want ErrNoCredential", err)
	}
}

func TestClearConversations(t *testing.T) {
	upstream := &fakeUpstream{}
	client, cleanup := newTestClient(t, upstream)
	defer cleanup()
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if _, err := client.SendMessage(ctx, "hi", id, nil); err != nil {
			t.Fatalf("SendMessage(%s): %v", id, err)
		}
	}

	client.ClearConversation("a")
	if _, ok := client.ConversationSummary("a"); ok {
		t.Error("conversation a should be gone")
	}
	if _, ok := client.ConversationSummary("b"); !ok {
		t.Error("conversation b should survive")
	}

	client.ClearAllConversations()
	if _, ok := client.ConversationSummary("b"); ok {
		t.Error("all conversations should be gone")
	}
}

func TestExportConversationReturnsCopy(t *testing.T) {
	upstream := &fakeUpstream{}
	client, cleanup := newTestClient(t, upstream)
	defer cleanup()

	if _, err := client.SendMessage(context.Background(), "hi", "conv", nil); err != nil {
		t.Fatalf("SendMessage(): %v", err)
	}

	exported, ok := client.ExportConversation("conv")
	if !ok || len(exported) != 2 {
		t.Fatalf("exported = %d turns ok=%v, want 2", len(exported), ok)
	}

	exported[0] = gemini.Content{Role: "user", Parts: []gemini.Part{{Text: "tampered"}}}
	fresh, _ := client.ExportConversation("conv")
	if fresh[0].Parts[0].Text == "tampered" {
		t.Error("export must not alias the stored history")
	}
}
