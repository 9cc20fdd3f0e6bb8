package classifier

import (
	"strings"

	"github.com/dvoloshyn/statement-insights/internal/domain"
)

// ExtractJSONObject locates the JSON object embedded in a model
// response. The service is instructed to return raw JSON, but it may
// still wrap the payload in commentary or Markdown fences; everything
// outside the first '{' and the last '}' is discarded.
func ExtractJSONObject(raw string) (string, error) {
	s := stripFences(raw)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", domain.NewParseError(domain.ReasonNoJSONFound, nil)
	}
	return s[start : end+1], nil
}

// stripFences removes ```json ... ``` or ``` ... ``` wrappers if the
// model ignored the no-Markdown instruction.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	// Drop the first line (``` or ```json).
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	} else {
		return s
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
