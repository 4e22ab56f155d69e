package mcpserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/dotsetgreg/dbchat/pkg/tools"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echo the text argument back." }

func (echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{"type": "string"},
		},
	}
}

func (echoTool) Execute(_ context.Context, args map[string]interface{}) *tools.ToolResult {
	text, _ := args["text"].(string)
	if text == "" {
		return tools.ErrorResult("text is required")
	}
	return tools.TextResult(text)
}

func frame(t *testing.T, payload interface{}) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(raw), raw)
}

func serveOnce(t *testing.T, input string) []rpcResponse {
	t.Helper()
	registry := tools.NewToolRegistry()
	registry.Register(echoTool{})

	var out bytes.Buffer
	srv := New(registry, strings.NewReader(input), &out, "dbchat", "test")
	if err := srv.Serve(context.Background()); err != nil {
		t.Fatalf("Serve returned error: %v", err)
	}

	var responses []rpcResponse
	reader := bufio.NewReader(&out)
	for {
		raw, err := readFrame(reader)
		if err != nil {
			break
		}
		var resp rpcResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			t.Fatalf("response is not JSON: %v", err)
		}
		responses = append(responses, resp)
	}
	return responses
}

func TestServe_Initialize(t *testing.T) {
	input := frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": "initialize",
		"params": map[string]interface{}{"protocolVersion": protocolVersion},
	})

	responses := serveOnce(t, input)
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}

	result, ok := responses[0].Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result is not an object: %v", responses[0].Result)
	}
	if result["protocolVersion"] != protocolVersion {
		t.Errorf("protocolVersion = %v", result["protocolVersion"])
	}
	info, _ := result["serverInfo"].(map[string]interface{})
	if info["name"] != "dbchat" {
		t.Errorf("serverInfo.name = %v", info["name"])
	}
}

func TestServe_InitializedNotificationHasNoReply(t *testing.T) {
	input := frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "method": "notifications/initialized",
	})
	if responses := serveOnce(t, input); len(responses) != 0 {
		t.Fatalf("notification must not be answered, got %d responses", len(responses))
	}
}

func TestServe_ToolsList(t *testing.T) {
	input := frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "id": 2, "method": "tools/list",
	})

	responses := serveOnce(t, input)
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}

	result, _ := responses[0].Result.(map[string]interface{})
	list, _ := result["tools"].([]interface{})
	if len(list) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(list))
	}
	entry, _ := list[0].(map[string]interface{})
	if entry["name"] != "echo" {
		t.Errorf("tool name = %v", entry["name"])
	}
	if _, ok := entry["inputSchema"].(map[string]interface{}); !ok {
		t.Error("tool entry missing inputSchema object")
	}
}

func TestServe_ToolsCall(t *testing.T) {
	input := frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "id": 3, "method": "tools/call",
		"params": map[string]interface{}{
			"name":      "echo",
			"arguments": map[string]interface{}{"text": "hello"},
		},
	})

	responses := serveOnce(t, input)
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}

	result, _ := responses[0].Result.(map[string]interface{})
	if result["isError"] != false {
		t.Errorf("isError = %v", result["isError"])
	}
	content, _ := result["content"].([]interface{})
	if len(content) != 1 {
		t.Fatalf("expected 1 content block, got %d", len(content))
	}
	block, _ := content[0].(map[string]interface{})
	if block["type"] != "text" || block["text"] != "hello" {
		t.Errorf("unexpected content block: %v", block)
	}
}

func TestServe_ToolsCall_ErrorResult(t *testing.T) {
	input := frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "id": 4, "method": "tools/call",
		"params": map[string]interface{}{
			"name":      "echo",
			"arguments": map[string]interface{}{},
		},
	})

	responses := serveOnce(t, input)
	result, _ := responses[0].Result.(map[string]interface{})
	if result["isError"] != true {
		t.Errorf("isError = %v, want true", result["isError"])
	}
}

func TestServe_UnknownMethod(t *testing.T) {
	input := frame(t, map[string]interface{}{
		"jsonrpc": "2.0", "id": 5, "method": "resources/list",
	})

	responses := serveOnce(t, input)
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if responses[0].Error == nil || responses[0].Error.Code != codeMethodNotFound {
		t.Errorf("expected method-not-found error, got %+v", responses[0].Error)
	}
}

func TestServe_ParseError(t *testing.T) {
	bad := "{not json"
	input := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(bad), bad)

	responses := serveOnce(t, input)
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if responses[0].Error == nil || responses[0].Error.Code != codeParseError {
		t.Errorf("expected parse error, got %+v", responses[0].Error)
	}
}

func TestServe_MultipleFramesThenEOF(t *testing.T) {
	input := frame(t, map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": "initialize"}) +
		frame(t, map[string]interface{}{"jsonrpc": "2.0", "method": "notifications/initialized"}) +
		frame(t, map[string]interface{}{"jsonrpc": "2.0", "id": 2, "method": "tools/list"})

	responses := serveOnce(t, input)
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
}
