package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_Identity(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Defaults.Table != "Customer" {
		t.Errorf("default table = %q, want %q", cfg.Defaults.Table, "Customer")
	}
	if cfg.Defaults.Schema != "SAC_1" {
		t.Errorf("default schema = %q, want %q", cfg.Defaults.Schema, "SAC_1")
	}
}

func TestDefaultConfig_ChatWindow(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Chat.MaxExchanges != 10 {
		t.Errorf("max exchanges = %d, want 10", cfg.Chat.MaxExchanges)
	}
}

func TestDefaultConfig_Database(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.Path == "" {
		t.Error("sqlite path should have a default")
	}
}

func TestLoadConfig_EnvOverridesWithoutFile(t *testing.T) {
	t.Setenv("DBCHAT_LLM_DEPLOYMENT_ID", "dep-123")
	t.Setenv("DBCHAT_DEFAULT_TABLE", "Orders")
	path := filepath.Join(t.TempDir(), "missing-config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.LLM.DeploymentID; got != "dep-123" {
		t.Fatalf("expected env override deployment id, got %q", got)
	}
	if got := cfg.Defaults.Table; got != "Orders" {
		t.Fatalf("expected env override default table, got %q", got)
	}
}

func TestValidateChat(t *testing.T) {
	testcases := []struct {
		name        string
		mutate      func(cfg *Config)
		wantErr     bool
		errContains []string
	}{
		{
			name:        "empty-llm-config",
			mutate:      func(cfg *Config) {},
			wantErr:     true,
			errContains: []string{"llm.auth_url", "llm.client_id", "llm.client_secret", "llm.api_base", "llm.deployment_id"},
		},
		{
			name: "missing-deployment-only",
			mutate: func(cfg *Config) {
				cfg.LLM.AuthURL = "https://auth.example.com"
				cfg.LLM.ClientID = "id"
				cfg.LLM.ClientSecret = "secret"
				cfg.LLM.APIBase = "https://api.example.com"
			},
			wantErr:     true,
			errContains: []string{"llm.deployment_id"},
		},
		{
			name: "empty-default-table",
			mutate: func(cfg *Config) {
				cfg.LLM.AuthURL = "https://auth.example.com"
				cfg.LLM.ClientID = "id"
				cfg.LLM.ClientSecret = "secret"
				cfg.LLM.APIBase = "https://api.example.com"
				cfg.LLM.DeploymentID = "dep"
				cfg.Defaults.Table = ""
			},
			wantErr:     true,
			errContains: []string{"defaults.table"},
		},
		{
			name: "complete",
			mutate: func(cfg *Config) {
				cfg.LLM.AuthURL = "https://auth.example.com"
				cfg.LLM.ClientID = "id"
				cfg.LLM.ClientSecret = "secret"
				cfg.LLM.APIBase = "https://api.example.com"
				cfg.LLM.DeploymentID = "dep"
			},
			wantErr: false,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.ValidateChat()
			if tc.wantErr {
				assert.Error(t, err)
				for _, msg := range tc.errContains {
					assert.ErrorContains(t, err, msg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateServe(t *testing.T) {
	testcases := []struct {
		name        string
		mutate      func(cfg *Config)
		wantErr     bool
		errContains []string
	}{
		{
			name:    "sqlite-defaults",
			mutate:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name: "sqlite-missing-path",
			mutate: func(cfg *Config) {
				cfg.Database.Path = ""
			},
			wantErr:     true,
			errContains: []string{"database.path"},
		},
		{
			name: "postgres-missing-everything",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = DriverPostgres
			},
			wantErr:     true,
			errContains: []string{"database.host", "database.user", "database.name"},
		},
		{
			name: "postgres-complete",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = DriverPostgres
				cfg.Database.Host = "db.example.com"
				cfg.Database.User = "app"
				cfg.Database.Name = "appdb"
			},
			wantErr: false,
		},
		{
			name: "unknown-driver",
			mutate: func(cfg *Config) {
				cfg.Database.Driver = "oracle"
			},
			wantErr:     true,
			errContains: []string{"unsupported database driver"},
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.ValidateServe()
			if tc.wantErr {
				assert.Error(t, err)
				for _, msg := range tc.errContains {
					assert.ErrorContains(t, err, msg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Driver = DriverPostgres
	cfg.Database.Host = "db.example.com"
	cfg.Database.Port = 5433
	cfg.Database.User = "app"
	cfg.Database.Password = "pw"
	cfg.Database.Name = "appdb"

	dsn := cfg.PostgresDSN()
	want := "host=db.example.com port=5433 user=app dbname=appdb password=pw sslmode=disable"
	if dsn != want {
		t.Fatalf("dsn = %q, want %q", dsn, want)
	}
}
