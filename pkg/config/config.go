package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Database  DatabaseConfig  `json:"database"`
	LLM       LLMConfig       `json:"llm"`
	Defaults  DefaultsConfig  `json:"defaults"`
	Chat      ChatConfig      `json:"chat"`
	Connector ConnectorConfig `json:"connector"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver" env:"DBCHAT_DB_DRIVER"`
	Path     string `json:"path" env:"DBCHAT_DB_PATH"`
	Host     string `json:"host" env:"DBCHAT_DB_HOST"`
	Port     int    `json:"port" env:"DBCHAT_DB_PORT"`
	User     string `json:"user" env:"DBCHAT_DB_USER"`
	Password string `json:"password" env:"DBCHAT_DB_PASSWORD"`
	Name     string `json:"name" env:"DBCHAT_DB_NAME"`
	Schema   string `json:"schema" env:"DBCHAT_DB_SCHEMA"`
	SSLMode  string `json:"ssl_mode" env:"DBCHAT_DB_SSL_MODE"`
}

type LLMConfig struct {
	AuthURL      string  `json:"auth_url" env:"DBCHAT_LLM_AUTH_URL"`
	ClientID     string  `json:"client_id" env:"DBCHAT_LLM_CLIENT_ID"`
	ClientSecret string  `json:"client_secret" env:"DBCHAT_LLM_CLIENT_SECRET"`
	APIBase      string  `json:"api_base" env:"DBCHAT_LLM_API_BASE"`
	DeploymentID string  `json:"deployment_id" env:"DBCHAT_LLM_DEPLOYMENT_ID"`
	Model        string  `json:"model" env:"DBCHAT_LLM_MODEL"`
	Temperature  float64 `json:"temperature" env:"DBCHAT_LLM_TEMPERATURE"`
	MaxTokens    int     `json:"max_tokens" env:"DBCHAT_LLM_MAX_TOKENS"`
}

// DefaultsConfig is the fixed identity pair used when the user never names a
// table or schema namespace.
type DefaultsConfig struct {
	Table  string `json:"table" env:"DBCHAT_DEFAULT_TABLE"`
	Schema string `json:"schema" env:"DBCHAT_DEFAULT_SCHEMA"`
}

type ChatConfig struct {
	MaxExchanges int `json:"max_exchanges" env:"DBCHAT_CHAT_MAX_EXCHANGES"`
}

type ConnectorConfig struct {
	TimeoutSeconds   int `json:"timeout_seconds" env:"DBCHAT_CONNECTOR_TIMEOUT_SECONDS"`
	RetryMaxAttempts int `json:"retry_max_attempts" env:"DBCHAT_CONNECTOR_RETRY_MAX_ATTEMPTS"`
	RetryBackoffMS   int `json:"retry_backoff_ms" env:"DBCHAT_CONNECTOR_RETRY_BACKOFF_MS"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:  DriverSQLite,
			Path:    "~/.dbchat/dbchat.db",
			Port:    5432,
			SSLMode: "disable",
		},
		LLM: LLMConfig{
			Temperature: 0,
			MaxTokens:   2048,
		},
		Defaults: DefaultsConfig{
			Table:  "Customer",
			Schema: "SAC_1",
		},
		Chat: ChatConfig{
			MaxExchanges: 10,
		},
		Connector: ConnectorConfig{
			TimeoutSeconds:   30,
			RetryMaxAttempts: 2,
			RetryBackoffMS:   250,
		},
	}
}

// LoadConfig reads the optional JSON config file and then applies environment
// overrides. A missing file is not an error; environment alone is enough.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateServe checks the settings the tool server needs before it opens the
// database.
func (c *Config) ValidateServe() error {
	switch strings.ToLower(strings.TrimSpace(c.Database.Driver)) {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		var missing []string
		if strings.TrimSpace(c.Database.Host) == "" {
			missing = append(missing, "database.host")
		}
		if strings.TrimSpace(c.Database.User) == "" {
			missing = append(missing, "database.user")
		}
		if strings.TrimSpace(c.Database.Name) == "" {
			missing = append(missing, "database.name")
		}
		if len(missing) > 0 {
			return fmt.Errorf("postgres driver requires %s", strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	return nil
}

// ValidateChat checks the settings the conversational client needs before it
// talks to the model.
func (c *Config) ValidateChat() error {
	var missing []string
	if strings.TrimSpace(c.LLM.AuthURL) == "" {
		missing = append(missing, "llm.auth_url")
	}
	if strings.TrimSpace(c.LLM.ClientID) == "" {
		missing = append(missing, "llm.client_id")
	}
	if strings.TrimSpace(c.LLM.ClientSecret) == "" {
		missing = append(missing, "llm.client_secret")
	}
	if strings.TrimSpace(c.LLM.APIBase) == "" {
		missing = append(missing, "llm.api_base")
	}
	if strings.TrimSpace(c.LLM.DeploymentID) == "" {
		missing = append(missing, "llm.deployment_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if strings.TrimSpace(c.Defaults.Table) == "" {
		return fmt.Errorf("defaults.table must not be empty")
	}
	return nil
}

// SQLitePath resolves the sqlite database file path.
func (c *Config) SQLitePath() string {
	return expandHome(c.Database.Path)
}

// PostgresDSN builds a lib/pq connection string from the database settings.
func (c *Config) PostgresDSN() string {
	parts := []string{
		fmt.Sprintf("host=%s", c.Database.Host),
		fmt.Sprintf("port=%d", c.Database.Port),
		fmt.Sprintf("user=%s", c.Database.User),
		fmt.Sprintf("dbname=%s", c.Database.Name),
	}
	if c.Database.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", c.Database.Password))
	}
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts = append(parts, fmt.Sprintf("sslmode=%s", sslMode))
	return strings.Join(parts, " ")
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
