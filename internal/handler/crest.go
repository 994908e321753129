package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/Yuikij/japanesename/internal/catalog"
	"github.com/Yuikij/japanesename/internal/config"
	"github.com/Yuikij/japanesename/internal/gemini"
	"github.com/Yuikij/japanesename/internal/httputil"
	"github.com/Yuikij/japanesename/internal/naming"
)

var svgPattern = regexp.MustCompile(`(?is)<svg[\s\S]*?</svg>`)

// crestRequest is the accepted body for a family crest design.
type crestRequest struct {
	Name               string `json:"name"`
	Meaning            string `json:"meaning"`
	CulturalBackground string `json:"culturalBackground"`
	PersonalityMatch   string `json:"personalityMatch"`
	Locale             string `json:"locale,omitempty"`
}

// crestResponse always carries a renderable image data URL: the model's
// inline image when present, an SVG extracted from its text otherwise, and
// a deterministic placeholder as the last resort.
type crestResponse struct {
	Success     bool   `json:"success"`
	Image       string `json:"image"`
	Prompt      string `json:"prompt"`
	Explanation string `json:"explanation"`
	SVG         string `json:"svg"` // empty when the model produced a real image
	Text        string `json:"text"`
	Locale      string `json:"locale"`
}

// CrestHandler proxies family crest image generation: origin gate, locale
// resolution, localized prompt from the catalogue, and the image fallback
// chain over the provider's multimodal response.
type CrestHandler struct {
	allowlist  *Allowlist
	keys       *gemini.KeyPool
	endpoint   string
	catalogs   map[string]*catalog.Catalog
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCrestHandler creates a crest proxy over the preloaded locale catalogues.
func NewCrestHandler(allowlist *Allowlist, keys *gemini.KeyPool, endpoint string, catalogs map[string]*catalog.Catalog, logger *slog.Logger) *CrestHandler {
	return &CrestHandler{
		allowlist:  allowlist,
		keys:       keys,
		endpoint:   endpoint,
		catalogs:   catalogs,
		httpClient: &http.Client{Timeout: upstreamTimeout},
		logger:     logger,
	}
}

func (h *CrestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodOptions:
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusOK)
	default:
		httputil.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *CrestHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	if !h.allowlist.Allows(r) {
		h.logger.Warn("crest request denied, origin not allow-listed",
			"origin", r.Header.Get("Origin"), "referer", r.Header.Get("Referer"))
		httputil.RespondError(w, http.StatusForbidden, "Access denied")
		return
	}

	var req crestRequest
	if err := httputil.ParseJSON(w, r, config.MaxRequestBodyBytes, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Name is required")
		return
	}

	key := h.keys.Pick()
	if key == "" {
		h.logger.Error("crest request rejected, no api key configured")
		httputil.RespondError(w, http.StatusInternalServerError, "AI service not configured")
		return
	}

	locale := h.resolveLocale(r, req.Locale)
	cat := h.catalogs[locale]
	prompt := naming.CrestPrompt(cat, req.Name, req.Meaning, req.CulturalBackground, req.PersonalityMatch)

	body, err := json.Marshal(gemini.GenerateContentRequest{
		Contents: []gemini.Content{{Parts: []gemini.Part{{Text: prompt}}}},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
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

	resp, err := h.httpClient.Do(upstreamReq)
	if err != nil {
		h.logger.Error("crest upstream request failed", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to generate family crest design")
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logger.Error("reading crest upstream response failed", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to generate family crest design")
		return
	}
	if resp.StatusCode != http.StatusOK {
		h.logger.Error("crest upstream returned error",
			"status", resp.StatusCode, "body", truncate(string(raw), 500))
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to generate family crest design")
		return
	}

	var parsed gemini.GenerateContentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		h.logger.Error("decoding crest upstream response failed", "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to generate family crest design")
		return
	}

	image, svg, text := resolveCrestImage(&parsed, req.Name)

	h.logger.Info("crest generated",
		"name", req.Name,
		"locale", locale,
		"inline_image", svg == "",
	)

	httputil.RespondJSON(w, http.StatusOK, crestResponse{
		Success:     true,
		Image:       image,
		Prompt:      prompt,
		Explanation: text,
		SVG:         svg,
		Text:        text,
		Locale:      locale,
	})
}

// resolveLocale picks the prompt locale: explicit body field, then query
// parameter, then Accept-Language, then the default.
func (h *CrestHandler) resolveLocale(r *http.Request, bodyLocale string) string {
	if _, ok := h.catalogs[bodyLocale]; ok {
		return bodyLocale
	}
	if param := r.URL.Query().Get("locale"); param != "" {
		if _, ok := h.catalogs[param]; ok {
			return param
		}
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		for _, locale := range catalog.SupportedLocales() {
			if strings.Contains(accept, locale) {
				return locale
			}
		}
	}
	return config.DefaultLocale
}

// resolveCrestImage walks the fallback chain: inline image data, then an
// SVG embedded in the text, then a generated placeholder. The returned
// image is always a renderable data URL.
func resolveCrestImage(resp *gemini.GenerateContentResponse, name string) (image, svg, text string) {
	var inline *gemini.InlineData
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.InlineData != nil && inline == nil {
				inline = part.InlineData
			}
			if part.Text != "" && text == "" {
				text = part.Text
			}
		}
	}

	if inline != nil {
		return "data:" + inline.MimeType + ";base64," + inline.Data, "", text
	}

	svg = svgPattern.FindString(text)
	if svg == "" {
		svg = placeholderCrest(name)
	}
	if !strings.Contains(svg, "width=") || !strings.Contains(svg, "height=") {
		svg = strings.Replace(svg, "<svg", `<svg width="512" height="512"`, 1)
	}

	image = "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
	return image, svg, text
}

// placeholderCrest draws concentric circles around the name's first rune,
// so the caller always gets something crest-shaped to render.
func placeholderCrest(name string) string {
	initial := ""
	if runes := []rune(name); len(runes) > 0 {
		initial = string(runes[0])
	}
	return fmt.Sprintf(`<svg width="512" height="512" viewBox="0 0 512 512" xmlns="http://www.w3.org/2000/svg">
  <circle cx="256" cy="256" r="200" fill="none" stroke="black" stroke-width="8"/>
  <circle cx="256" cy="256" r="120" fill="none" stroke="black" stroke-width="6"/>
  <circle cx="256" cy="256" r="60" fill="none" stroke="black" stroke-width="4"/>
  <text x="256" y="276" text-anchor="middle" font-family="serif" font-size="24" fill="black">%s</text>
</svg>`, initial)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
