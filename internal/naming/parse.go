package naming

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Yuikij/japanesename/internal/domain"
)

// ExtractJSON pulls the first parseable JSON payload out of raw model
// output. Strategies in order: direct parse, first fenced code block (with
// or without a language tag), first balanced {...} span, first balanced
// [...] span. The first strategy that yields valid JSON wins.
func ExtractJSON(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", domain.ErrParse)
	}

	if json.Valid([]byte(trimmed)) {
		return []byte(trimmed), nil
	}

	if block := extractFencedBlock(trimmed); block != "" && json.Valid([]byte(block)) {
		return []byte(block), nil
	}

	if span := extractBalanced(trimmed, '{', '}'); span != "" && json.Valid([]byte(span)) {
		return []byte(span), nil
	}

	if span := extractBalanced(trimmed, '[', ']'); span != "" && json.Valid([]byte(span)) {
		return []byte(span), nil
	}

	return nil, fmt.Errorf("%w: no strategy matched", domain.ErrParse)
}

// DecodeResponse extracts JSON from raw model output and unmarshals it into
// dest.
func DecodeResponse(raw string, dest interface{}) error {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	return nil
}

// extractFencedBlock returns the contents of the first ``` fenced code
// block, skipping an optional language tag on the opening line.
func extractFencedBlock(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return ""
	}
	rest := s[start+3:]

	// Drop the language tag line, if any.
	newline := strings.IndexByte(rest, '\n')
	if newline == -1 {
		return ""
	}
	rest = rest[newline+1:]

	end := strings.Index(rest, "```")
	if end == -1 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}

// extractBalanced returns the first balanced open...close span. Brackets
// inside JSON string literals do not count toward the depth.
func extractBalanced(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
