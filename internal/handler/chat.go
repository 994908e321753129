package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Yuikij/japanesename/internal/config"
	"github.com/Yuikij/japanesename/internal/gemini"
	"github.com/Yuikij/japanesename/internal/httputil"
	"github.com/Yuikij/japanesename/internal/ratelimit"
)

const (
	upstreamTimeout = 120 * time.Second
	gatewayUA       = "JapaneseName-Generator/1.0"
)

var (
	errContentsRequired = errors.New("Invalid request format: contents array required")
	errContentsEmpty    = errors.New("Invalid request format: contents array cannot be empty")
)

// Chat generation defaults; callers may override any field per request.
const (
	chatMaxOutputTokens = 16000
	chatTemperature     = 0.8
	chatTopP            = 0.9
	chatTopK            = 40
)

// chatRequest is the accepted body shape. Contents and generationConfig are
// kept raw so provider fields this gateway does not model pass through
// untouched.
type chatRequest struct {
	Contents         json.RawMessage        `json:"contents"`
	GenerationConfig json.RawMessage        `json:"generationConfig"`
	SafetySettings   []gemini.SafetySetting `json:"safetySettings"`
}

// upstreamChatRequest is the body forwarded to the provider after defaults
// are merged in.
type upstreamChatRequest struct {
	Contents         json.RawMessage        `json:"contents"`
	GenerationConfig json.RawMessage        `json:"generationConfig"`
	SafetySettings   []gemini.SafetySetting `json:"safetySettings"`
}

// ChatHandler proxies chat completions to the upstream provider: origin
// gate, rate limit, shape validation, credential injection, then verbatim
// relay of the upstream success body.
type ChatHandler struct {
	allowlist  *Allowlist
	limiter    *ratelimit.Limiter
	keys       *gemini.KeyPool
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewChatHandler creates a chat proxy handler targeting the given
// generateContent endpoint.
func NewChatHandler(allowlist *Allowlist, limiter *ratelimit.Limiter, keys *gemini.KeyPool, endpoint string, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		allowlist:  allowlist,
		limiter:    limiter,
		keys:       keys,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: upstreamTimeout},
		logger:     logger,
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodOptions:
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusOK)
	default:
		httputil.RespondError(w, http.StatusMethodNotAllowed,
			"Method not allowed. Use POST to send chat messages.")
	}
}

func (h *ChatHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	if !h.allowlist.Allows(r) {
		h.logger.Warn("chat request denied, origin not allow-listed",
			"origin", r.Header.Get("Origin"), "referer", r.Header.Get("Referer"))
		httputil.RespondError(w, http.StatusForbidden, "Access denied")
		return
	}

	clientIP := httputil.ClientIP(r)
	if !h.limiter.Allow(r.Context(), clientIP) {
		h.logger.Warn("chat request rate limited", "client", clientIP)
		httputil.RespondError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	key := h.keys.Pick()
	if key == "" {
		h.logger.Error("chat request rejected, no api key configured")
		httputil.RespondError(w, http.StatusInternalServerError, "LLM API key not configured")
		return
	}

	var req chatRequest
	if err := httputil.ParseJSON(w, r, config.MaxRequestBodyBytes, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if err := validateContents(req.Contents); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	safety := req.SafetySettings
	if len(safety) == 0 {
		safety = gemini.DefaultSafetySettings()
	}

	generationConfig, err := mergeGenerationDefaults(req.GenerationConfig)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}

	body, err := json.Marshal(upstreamChatRequest{
		Contents:         req.Contents,
		GenerationConfig: generationConfig,
		SafetySettings:   safety,
	})
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost,
		h.endpoint+"?key="+key, bytes.NewReader(body))
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	upstreamReq.Header.Set("Content-Type", "application/json")
	upstreamReq.Header.Set("User-Agent", gatewayUA)

	start := time.Now()
	resp, err := h.httpClient.Do(upstreamReq)
	if err != nil {
		h.logger.Error("chat upstream request failed", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logger.Error("reading chat upstream response failed", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if resp.StatusCode != http.StatusOK {
		message := "LLM API request failed"
		var parsed gemini.GenerateContentResponse
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		h.logger.Error("chat upstream returned error",
			"status", resp.StatusCode, "message", message)
		httputil.RespondError(w, resp.StatusCode, message)
		return
	}

	h.logger.Info("chat request proxied",
		"client", clientIP,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	// Success bodies are relayed byte for byte; the gateway never
	// re-encodes what the provider said.
	w.Header().Set("Cache-Control", "no-cache")
	httputil.RespondRaw(w, http.StatusOK, raw)
}

// mergeGenerationDefaults fills absent sampling keys with the chat defaults
// while keeping the caller's config raw, so explicit zero values and fields
// this gateway does not model are relayed untouched.
func mergeGenerationDefaults(raw json.RawMessage) (json.RawMessage, error) {
	merged := map[string]json.RawMessage{}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &merged); err != nil {
			return nil, err
		}
	}

	defaults := map[string]any{
		"maxOutputTokens": chatMaxOutputTokens,
		"temperature":     chatTemperature,
		"topP":            chatTopP,
		"topK":            chatTopK,
	}
	for key, value := range defaults {
		if _, ok := merged[key]; ok {
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		merged[key] = encoded
	}
	return json.Marshal(merged)
}

func validateContents(contents json.RawMessage) error {
	trimmed := bytes.TrimSpace(contents)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || trimmed[0] != '[' {
		return errContentsRequired
	}
	var probe []json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return errContentsRequired
	}
	if len(probe) == 0 {
		return errContentsEmpty
	}
	return nil
}
