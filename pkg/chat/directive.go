package chat

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	toolPattern       = regexp.MustCompile(`TOOL:\s*(\w+)`)
	paramsPattern     = regexp.MustCompile(`(?s)PARAMS:\s*(\{.*\})`)
	bareSchemaPattern = regexp.MustCompile(`(?i)^get_schema\s*\(\s*\)$`)
)

// ParseDirective extracts a tool call from model output. Three shapes are
// accepted, tried in order: the TOOL:/PARAMS: line format, a JSON object with
// TOOL and PARAMS keys (optionally inside a markdown fence), and a bare
// "get_schema()" call. Returns false when none match.
func ParseDirective(text string) (*Directive, bool) {
	if d, ok := parseToolParams(text); ok {
		return d, true
	}
	if d, ok := parseJSONDirective(text); ok {
		return d, true
	}
	if bareSchemaPattern.MatchString(strings.TrimSpace(text)) {
		return &Directive{Tool: "get_schema", Params: map[string]interface{}{}}, true
	}
	return nil, false
}

func parseToolParams(text string) (*Directive, bool) {
	toolMatch := toolPattern.FindStringSubmatch(text)
	paramsMatch := paramsPattern.FindStringSubmatch(text)
	if toolMatch == nil || paramsMatch == nil {
		return nil, false
	}
	params := map[string]interface{}{}
	if err := json.Unmarshal([]byte(paramsMatch[1]), &params); err != nil {
		return nil, false
	}
	return &Directive{Tool: toolMatch[1], Params: params}, true
}

func parseJSONDirective(text string) (*Directive, bool) {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = cleaned[len("```json"):]
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = cleaned[len("```"):]
	}
	cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload struct {
		Tool   string                 `json:"TOOL"`
		Params map[string]interface{} `json:"PARAMS"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, false
	}
	if strings.TrimSpace(payload.Tool) == "" || payload.Params == nil {
		return nil, false
	}
	return &Directive{Tool: payload.Tool, Params: payload.Params}, true
}

// unwrapJSONAnswer unpacks a conversational answer the model wrapped in a
// JSON object under a well-known key. Non-JSON text passes through unchanged.
func unwrapJSONAnswer(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return text
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return text
	}
	for _, key := range []string{"response", "answer", "content", "message"} {
		if value, ok := payload[key].(string); ok {
			return value
		}
	}
	return text
}
