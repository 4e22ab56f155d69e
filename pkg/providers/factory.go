package providers

import (
	"fmt"
	"strings"

	"github.com/dotsetgreg/dbchat/pkg/config"
	"github.com/dotsetgreg/dbchat/pkg/connectors"
)

// NewFromConfig builds the chat-completions provider for a deployment-style
// gateway: the inference base is {api_base}/inference/deployments/{id} and
// requests are authorized with OAuth client-credentials tokens.
func NewFromConfig(cfg *config.Config) (LLMProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	apiBase := strings.TrimRight(strings.TrimSpace(connectors.ResolveSecretRef(cfg.LLM.APIBase)), "/")
	if apiBase == "" {
		return nil, fmt.Errorf("llm api_base is not configured")
	}
	deployment := strings.TrimSpace(cfg.LLM.DeploymentID)
	if deployment != "" {
		apiBase = apiBase + "/inference/deployments/" + deployment
	}

	source := NewClientCredentialsTokenSource(
		connectors.ResolveSecretRef(cfg.LLM.AuthURL),
		connectors.ResolveSecretRef(cfg.LLM.ClientID),
		connectors.ResolveSecretRef(cfg.LLM.ClientSecret),
	)
	return newChatCompletionsProvider("dbchat", apiBase, cfg.LLM.Model, NewBearerTokenAuth(source), nil)
}
