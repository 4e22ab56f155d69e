package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is the interface that all tools must implement.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *ToolResult
}

// ToolResult carries the payload a tool hands back over the wire.
type ToolResult struct {
	Text    string
	IsError bool
	Err     error
}

func TextResult(text string) *ToolResult {
	return &ToolResult{Text: text}
}

// JSONResult marshals payload into the result text. Marshal failures become
// error results so a tool never returns an empty payload silently.
func JSONResult(payload interface{}) *ToolResult {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ErrorResult(fmt.Sprintf("encode result: %v", err)).WithError(err)
	}
	return &ToolResult{Text: string(raw)}
}

func ErrorResult(msg string) *ToolResult {
	return &ToolResult{Text: msg, IsError: true}
}

func (r *ToolResult) WithError(err error) *ToolResult {
	r.Err = err
	return r
}

func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("parameter %q must be a non-empty string", key)
	}
	return s, nil
}

func objectArg(args map[string]interface{}, key string) (map[string]interface{}, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing required parameter %q", key)
	}
	m, ok := v.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil, fmt.Errorf("parameter %q must be a non-empty object", key)
	}
	return m, nil
}
