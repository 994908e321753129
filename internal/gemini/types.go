// Package gemini holds the wire types for the upstream Gemini REST contract.
// The gateway forwards caller payloads with these shapes and relays the
// provider's JSON body verbatim, so the types model only what the proxy and
// the chat client actually read.
package gemini

// Part is one fragment of a content turn: text, or inline binary data for
// image-bearing responses.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is a base64-encoded media payload with its declared MIME type.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Content is one turn of a conversation.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerationConfig carries the sampling parameters a caller may override.
// Zero fields are filled from per-call-site defaults before forwarding.
type GenerationConfig struct {
	MaxOutputTokens    int      `json:"maxOutputTokens,omitempty"`
	Temperature        float64  `json:"temperature,omitempty"`
	TopP               float64  `json:"topP,omitempty"`
	TopK               int      `json:"topK,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

// SafetySetting is one harm-category filter threshold.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// GenerateContentRequest is the body POSTed to the generateContent endpoint.
type GenerateContentRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
	SafetySettings   []SafetySetting   `json:"safetySettings,omitempty"`
}

// Candidate is one model completion.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// GenerateContentResponse models the fields read out of an upstream success.
type GenerateContentResponse struct {
	Candidates []Candidate `json:"candidates,omitempty"`
	Error      *APIError   `json:"error,omitempty"`
}

// APIError is the upstream error body, relayed to callers unmodified.
type APIError struct {
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// FirstText returns the first candidate's first text part, or "" when the
// response carries no candidate text.
func (r *GenerateContentResponse) FirstText() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	for _, part := range r.Candidates[0].Content.Parts {
		if part.Text != "" {
			return part.Text
		}
	}
	return ""
}

// DefaultSafetySettings is the fixed safety policy substituted when the
// caller supplies none.
func DefaultSafetySettings() []SafetySetting {
	return []SafetySetting{
		{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
		{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
		{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
		{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	}
}

// MergeGenerationConfig fills zero fields of override with the given
// defaults. Caller values take precedence; nil override returns a copy of
// the defaults.
func MergeGenerationConfig(defaults GenerationConfig, override *GenerationConfig) GenerationConfig {
	if override == nil {
		return defaults
	}
	merged := *override
	if merged.MaxOutputTokens == 0 {
		merged.MaxOutputTokens = defaults.MaxOutputTokens
	}
	if merged.Temperature == 0 {
		merged.Temperature = defaults.Temperature
	}
	if merged.TopP == 0 {
		merged.TopP = defaults.TopP
	}
	if merged.TopK == 0 {
		merged.TopK = defaults.TopK
	}
	if len(merged.ResponseModalities) == 0 {
		merged.ResponseModalities = defaults.ResponseModalities
	}
	return merged
}
