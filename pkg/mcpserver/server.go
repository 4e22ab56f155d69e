package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/dotsetgreg/dbchat/pkg/logger"
	"github.com/dotsetgreg/dbchat/pkg/tools"
)

const protocolVersion = "2025-06-18"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// Server answers MCP tool requests over a byte stream, one JSON-RPC frame at
// a time. It owns no state beyond the registry handed to it.
type Server struct {
	registry *tools.ToolRegistry
	in       *bufio.Reader
	out      io.Writer
	outMu    sync.Mutex
	name     string
	version  string
}

// New builds a server reading requests from in and writing responses to out.
func New(registry *tools.ToolRegistry, in io.Reader, out io.Writer, name, version string) *Server {
	return &Server{
		registry: registry,
		in:       bufio.NewReader(in),
		out:      out,
		name:     strings.TrimSpace(name),
		version:  strings.TrimSpace(version),
	}
}

// Serve processes frames until the input stream closes or ctx is canceled.
// Each request maps to exactly one response; notifications get none.
func (s *Server) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := readFrame(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		var req rpcRequest
		if err := json.Unmarshal(frame, &req); err != nil {
			_ = s.writeError(nil, codeParseError, "invalid JSON payload")
			continue
		}
		s.dispatch(ctx, req)
	}
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) {
	switch req.Method {
	case "initialize":
		_ = s.writeResult(req.ID, map[string]interface{}{
			"protocolVersion": protocolVersion,
			"serverInfo": map[string]interface{}{
				"name":    s.name,
				"version": s.version,
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
		})
	case "notifications/initialized":
		// Notification; no reply.
	case "tools/list":
		_ = s.writeResult(req.ID, map[string]interface{}{
			"tools": s.toolList(),
		})
	case "tools/call":
		s.handleToolCall(ctx, req)
	default:
		if len(req.ID) == 0 {
			logger.WarnCF("mcpserver", "Dropping unknown notification",
				map[string]interface{}{"method": req.Method})
			return
		}
		_ = s.writeError(req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (s *Server) toolList() []map[string]interface{} {
	all := s.registry.List()
	out := make([]map[string]interface{}, 0, len(all))
	for _, tool := range all {
		out = append(out, map[string]interface{}{
			"name":        tool.Name(),
			"description": tool.Description(),
			"inputSchema": tool.Parameters(),
		})
	}
	return out
}

func (s *Server) handleToolCall(ctx context.Context, req rpcRequest) {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || strings.TrimSpace(params.Name) == "" {
		_ = s.writeError(req.ID, codeInvalidParams, "tools/call requires a tool name")
		return
	}

	result := s.registry.Execute(ctx, params.Name, params.Arguments)
	_ = s.writeResult(req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": result.Text},
		},
		"isError": result.IsError,
	})
}

func (s *Server) writeResult(id json.RawMessage, result interface{}) error {
	return s.writeFrame(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(id json.RawMessage, code int, msg string) error {
	return s.writeFrame(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}})
}

func (s *Server) writeFrame(payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(raw))
	if _, err := io.WriteString(s.out, header); err != nil {
		return err
	}
	_, err = s.out.Write(raw)
	return err
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	headers := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	clRaw := headers["content-length"]
	if clRaw == "" {
		return nil, fmt.Errorf("frame missing content-length")
	}
	length, err := strconv.Atoi(clRaw)
	if err != nil || length <= 0 {
		return nil, fmt.Errorf("invalid content-length: %s", clRaw)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
