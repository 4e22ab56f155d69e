package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dotsetgreg/dbchat/pkg/config"
	"github.com/dotsetgreg/dbchat/pkg/connectors"
	"github.com/dotsetgreg/dbchat/pkg/logger"
	"github.com/dotsetgreg/dbchat/pkg/providers"
)

// Session drives one conversation against a tool server: it routes each
// query, asks the model for tool directives, invokes tools, and phrases the
// results. A session is single-user and not safe for concurrent queries.
type Session struct {
	runtime     connectors.Runtime
	provider    providers.LLMProvider
	descriptors []connectors.ToolDescriptor
	memory      *Memory

	schemaCache map[string]interface{}

	defaults    config.DefaultsConfig
	model       string
	temperature float64
	maxTokens   int
}

// NewSession connects the pieces and fetches the server's tool catalog once.
func NewSession(ctx context.Context, runtime connectors.Runtime, provider providers.LLMProvider, cfg *config.Config) (*Session, error) {
	if runtime == nil {
		return nil, fmt.Errorf("runtime is nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider is nil")
	}

	descriptors, err := runtime.ListDescriptors(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list server tools: %w", err)
	}

	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.Name)
	}
	logger.InfoCF("chat", "Connected to tool server",
		map[string]interface{}{"tools": strings.Join(names, ",")})

	return &Session{
		runtime:     runtime,
		provider:    provider,
		descriptors: descriptors,
		memory:      NewMemory(cfg.Chat.MaxExchanges),
		defaults:    cfg.Defaults,
		model:       cfg.LLM.Model,
		temperature: cfg.LLM.Temperature,
		maxTokens:   cfg.LLM.MaxTokens,
	}, nil
}

// Tools returns the server's tool catalog as fetched at connect time.
func (s *Session) Tools() []connectors.ToolDescriptor {
	out := make([]connectors.ToolDescriptor, len(s.descriptors))
	copy(out, s.descriptors)
	return out
}

// ProcessQuery answers one user query. Mutation-flavored queries go through
// the schema-aware handlers; everything else goes through the conversational
// path with memory.
func (s *Session) ProcessQuery(ctx context.Context, query string) (string, error) {
	turnID := uuid.NewString()
	intent := ClassifyIntent(query)
	logger.InfoCF("chat", "Processing query",
		map[string]interface{}{
			"turn_id": turnID,
			"intent":  intentName(intent),
		})

	if spec, ok := mutationSpecs[intent]; ok {
		schema, err := s.SchemaData(ctx, false)
		if err != nil {
			logger.WarnCF("chat", "Schema unavailable, falling back to generic handling",
				map[string]interface{}{
					"turn_id": turnID,
					"error":   err.Error(),
				})
		} else {
			return s.handleMutation(ctx, query, schema, spec)
		}
	}
	return s.processGeneric(ctx, query, turnID)
}

// SchemaData fetches the database schema from the server, caching it for the
// life of the session. With force set, the cache is bypassed and replaced.
func (s *Session) SchemaData(ctx context.Context, force bool) (map[string]interface{}, error) {
	if s.schemaCache != nil && !force {
		return s.schemaCache, nil
	}

	result, err := s.runtime.Invoke(ctx, "get_schema", map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if result.IsError {
		return nil, fmt.Errorf("get_schema failed: %s", result.Content)
	}

	schema := map[string]interface{}{}
	if err := json.Unmarshal([]byte(result.Content), &schema); err != nil {
		// The server answered with something other than JSON; keep it
		// so mutation prompts can still show it to the model.
		schema = map[string]interface{}{"raw_schema": result.Content}
	}
	s.schemaCache = schema
	return schema, nil
}

// RefreshSchema drops the cached schema and fetches a fresh copy.
func (s *Session) RefreshSchema(ctx context.Context) error {
	_, err := s.SchemaData(ctx, true)
	return err
}

// handleMutation is the schema-aware write path: one single-shot model call
// (no conversation memory) produces the directive, which must name the
// expected tool. All failures come back as user-facing sentences.
func (s *Session) handleMutation(ctx context.Context, query string, schema map[string]interface{}, spec mutationSpec) (string, error) {
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}

	prompt := spec.buildPrompt(string(schemaJSON), query)
	resp, err := s.provider.Chat(ctx, []providers.Message{providers.UserMessage(prompt)}, s.model, s.chatOptions(s.temperature))
	if err != nil {
		return "", err
	}

	directive, ok := ParseDirective(resp.Content)
	if !ok || directive.Tool != spec.tool || len(directive.Params) == 0 {
		return fmt.Sprintf("Could not parse the %s request. Model response: %s", spec.noun, resp.Content), nil
	}
	if _, ok := directive.Params["table"]; !ok {
		directive.Params["table"] = s.defaults.Table
	}

	result, err := s.runtime.Invoke(ctx, spec.tool, directive.Params)
	if err != nil {
		return fmt.Sprintf("Error %s data: %v", spec.gerund, err), nil
	}
	return classifyMutationResult(spec, result.Content, directive.Params), nil
}

// processGeneric is the conversational path. The exchange is recorded in
// memory exactly once, whether or not the model called a tool.
func (s *Session) processGeneric(ctx context.Context, query, turnID string) (string, error) {
	messages := make([]providers.Message, 0, s.memory.Len()+2)
	messages = append(messages, providers.SystemMessage(buildSystemPrompt(s.descriptors, s.defaults.Table, s.defaults.Schema)))
	messages = append(messages, s.memory.Messages()...)
	messages = append(messages, providers.UserMessage(query))

	// Routing calls run at temperature zero so directive output stays stable.
	resp, err := s.provider.Chat(ctx, messages, s.model, s.chatOptions(0))
	if err != nil {
		return "", err
	}
	responseText := resp.Content
	s.memory.AppendExchange(providers.UserMessage(query), providers.AssistantMessage(responseText))

	responseText = unwrapJSONAnswer(responseText)

	directive, ok := ParseDirective(responseText)
	if !ok {
		return responseText, nil
	}
	s.fillDefaults(directive.Params)

	logger.InfoCF("chat", "Invoking tool",
		map[string]interface{}{
			"turn_id": turnID,
			"tool":    directive.Tool,
		})
	result, err := s.runtime.Invoke(ctx, directive.Tool, directive.Params)
	if err != nil {
		return "", err
	}
	return s.interpretToolResult(ctx, query, directive.Tool, result)
}

// fillDefaults injects the configured table and schema namespace into any
// directive that leaves them out.
func (s *Session) fillDefaults(params map[string]interface{}) {
	if _, ok := params["table"]; !ok {
		params["table"] = s.defaults.Table
	}
	if _, ok := params["schema"]; !ok {
		params["schema"] = s.defaults.Schema
	}
}

// interpretToolResult phrases a read result for the user. JSON payloads get
// a second model call; anything else is surfaced as-is.
func (s *Session) interpretToolResult(ctx context.Context, query, toolName string, result connectors.InvocationResult) (string, error) {
	content := strings.TrimSpace(result.Content)
	if content == "" {
		return "Sorry. I couldn't retrieve the data from the tool.", nil
	}

	var data interface{}
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return "Retrieved data: " + content, nil
	}
	pretty, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		pretty = []byte(content)
	}

	prompt := interpretationPrompt(query, toolName, string(pretty))
	resp, err := s.provider.Chat(ctx, []providers.Message{providers.UserMessage(prompt)}, s.model, s.chatOptions(s.temperature))
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (s *Session) chatOptions(temperature float64) map[string]interface{} {
	options := map[string]interface{}{
		"temperature": temperature,
	}
	if s.maxTokens > 0 {
		options["max_tokens"] = s.maxTokens
	}
	return options
}

func intentName(intent Intent) string {
	switch intent {
	case IntentInsert:
		return "insert"
	case IntentDelete:
		return "delete"
	case IntentUpdate:
		return "update"
	default:
		return "generic"
	}
}
