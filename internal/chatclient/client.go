// Package chatclient maintains multi-turn Gemini conversations keyed by a
// caller-chosen conversation id. Each logical conversation carries its own
// alternating user/model history, so independent prompt threads never leak
// context into each other.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Yuikij/japanesename/internal/domain"
	"github.com/Yuikij/japanesename/internal/gemini"
)

// Generation defaults applied when the caller does not override them.
const (
	defaultMaxOutputTokens = 2000
	defaultTemperature     = 0.8
	defaultTopP            = 0.9
	defaultTopK            = 40
)

const requestTimeout = 60 * time.Second

// Summary describes one stored conversation.
type Summary struct {
	ConversationID string `json:"conversationId"`
	Turns          int    `json:"turns"`
}

// Client is a stateful Gemini chat client. Safe for concurrent use.
type Client struct {
	endpoint   string
	keys       *gemini.KeyPool
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	histories map[string][]gemini.Content
}

// New creates a chat client targeting the given generateContent endpoint.
func New(endpoint string, keys *gemini.KeyPool, logger *slog.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		keys:       keys,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
		histories:  make(map[string][]gemini.Content),
	}
}

// SendMessage appends the message to the conversation's history, calls the
// model with the full history, and returns the model's text. The exchange is
// committed to the history only on success, so a failed call can be retried
// without duplicating the turn.
func (c *Client) SendMessage(ctx context.Context, message, conversationID string, cfg *gemini.GenerationConfig) (string, error) {
	key := c.keys.Pick()
	if key == "" {
		return "", domain.ErrNoCredential
	}

	userTurn := gemini.Content{
		Role:  "user",
		Parts: []gemini.Part{{Text: message}},
	}

	c.mu.Lock()
	contents := append(append([]gemini.Content(nil), c.histories[conversationID]...), userTurn)
	c.mu.Unlock()

	merged := gemini.MergeGenerationConfig(gemini.GenerationConfig{
		MaxOutputTokens: defaultMaxOutputTokens,
		Temperature:     defaultTemperature,
		TopP:            defaultTopP,
		TopK:            defaultTopK,
	}, cfg)

	body, err := json.Marshal(gemini.GenerateContentRequest{
		Contents:         contents,
		GenerationConfig: &merged,
		SafetySettings:   gemini.DefaultSafetySettings(),
	})
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?key="+key, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", domain.ErrUpstream, err)
	}

	if resp.StatusCode != http.StatusOK {
		var parsed gemini.GenerateContentResponse
		errMessage := string(raw)
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
			errMessage = parsed.Error.Message
		}
		return "", &domain.UpstreamError{Status: resp.StatusCode, Message: errMessage}
	}

	var parsed gemini.GenerateContentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrResponseShape, err)
	}
	text := parsed.FirstText()
	if text == "" {
		return "", fmt.Errorf("%w: no candidate text", domain.ErrResponseShape)
	}

	c.logger.Debug("chat turn complete",
		"conversation_id", conversationID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	modelTurn := gemini.Content{
		Role:  "model",
		Parts: []gemini.Part{{Text: text}},
	}
	c.mu.Lock()
	c.histories[conversationID] = append(c.histories[conversationID], userTurn, modelTurn)
	c.mu.Unlock()

	return text, nil
}

// ClearConversation drops one conversation's history.
func (c *Client) ClearConversation(conversationID string) {
	c.mu.Lock()
	delete(c.histories, conversationID)
	c.mu.Unlock()
}

// ClearAllConversations drops every stored history.
func (c *Client) ClearAllConversations() {
	c.mu.Lock()
	c.histories = make(map[string][]gemini.Content)
	c.mu.Unlock()
}

// ConversationSummary reports the turn count of one conversation.
func (c *Client) ConversationSummary(conversationID string) (Summary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	history, ok := c.histories[conversationID]
	if !ok {
		return Summary{}, false
	}
	return Summary{ConversationID: conversationID, Turns: len(history)}, true
}

// ExportConversation returns a copy of one conversation's full history.
func (c *Client) ExportConversation(conversationID string) ([]gemini.Content, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	history, ok := c.histories[conversationID]
	if !ok {
		return nil, false
	}
	return append([]gemini.Content(nil), history...), true
}
