package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatCompletionsProvider_Chat(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{
					"message":       map[string]interface{}{"content": "TOOL: get_schema\nPARAMS: {}"},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]interface{}{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer server.Close()

	provider, err := newChatCompletionsProvider("dbchat", server.URL, "gpt-4o",
		NewBearerTokenAuth(NewStaticTokenSource("tok", "test")), nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	resp, err := provider.Chat(context.Background(), []Message{
		SystemMessage("You answer with tool directives."),
		UserMessage("show me the schema"),
	}, "", map[string]interface{}{"temperature": 0.1, "max_tokens": 500})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if resp.Content != "TOOL: get_schema\nPARAMS: {}" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if captured["model"] != "gpt-4o" {
		t.Errorf("request model = %v", captured["model"])
	}
	if captured["temperature"] != 0.1 {
		t.Errorf("request temperature = %v", captured["temperature"])
	}
	if captured["max_tokens"] != float64(500) {
		t.Errorf("request max_tokens = %v", captured["max_tokens"])
	}
}

func TestChatCompletionsProvider_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider, err := newChatCompletionsProvider("dbchat", server.URL, "gpt-4o",
		NewBearerTokenAuth(NewStaticTokenSource("tok", "test")), nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = provider.Chat(context.Background(), []Message{UserMessage("hi")}, "", nil)
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestFlattenMessageContent(t *testing.T) {
	if got := flattenMessageContent("plain"); got != "plain" {
		t.Errorf("string content = %q", got)
	}
	parts := []interface{}{
		map[string]interface{}{"type": "text", "text": "a"},
		map[string]interface{}{"type": "text", "text": "b"},
	}
	if got := flattenMessageContent(parts); got != "ab" {
		t.Errorf("parts content = %q", got)
	}
	if got := flattenMessageContent(42); got != "" {
		t.Errorf("unknown content = %q", got)
	}
}

func TestExtractAPIError(t *testing.T) {
	if got := extractAPIError([]byte(`{"error":{"message":"boom"}}`)); got != "boom" {
		t.Errorf("nested error = %q", got)
	}
	if got := extractAPIError([]byte(`{"message":"flat"}`)); got != "flat" {
		t.Errorf("flat error = %q", got)
	}
	if got := extractAPIError([]byte("   ")); got != "empty response body" {
		t.Errorf("empty body = %q", got)
	}
}
