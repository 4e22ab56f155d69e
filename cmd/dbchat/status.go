package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/dbchat/pkg/config"
	"github.com/dotsetgreg/dbchat/pkg/store"
)

func newStatusCommand(loadCfg func() (*config.Config, error), configPathFn func() string) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration, database, and model readiness",
		Example: "  dbchat status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCfg()
			if err != nil {
				return err
			}
			configPath := configPathFn()

			fmt.Printf("%s Status\n", appName)
			fmt.Printf("Version: %s\n", formatVersion())
			build, _ := formatBuildInfo()
			if build != "" {
				fmt.Printf("Build: %s\n", build)
			}
			fmt.Println()

			if _, err := os.Stat(configPath); err == nil {
				fmt.Println("Config:", configPath, "✓")
			} else {
				fmt.Println("Config:", configPath, "✗ (using defaults and environment)")
			}

			fmt.Printf("Driver: %s\n", cfg.Database.Driver)
			fmt.Printf("Defaults: table=%s schema=%s\n", cfg.Defaults.Table, cfg.Defaults.Schema)

			dbReady := false
			if err := cfg.ValidateServe(); err != nil {
				fmt.Println("Database:", "✗", err)
			} else {
				ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
				defer cancel()
				st, openErr := store.Open(cfg)
				if openErr != nil {
					fmt.Println("Database:", "✗", openErr)
				} else {
					if pingErr := st.Ping(ctx); pingErr != nil {
						fmt.Println("Database:", "✗", pingErr)
					} else {
						fmt.Println("Database:", "✓")
						dbReady = true
					}
					_ = st.Close()
				}
			}

			status := func(ok bool) string {
				if ok {
					return "✓"
				}
				return "not set"
			}
			llmReady := strings.TrimSpace(cfg.LLM.AuthURL) != "" &&
				strings.TrimSpace(cfg.LLM.ClientID) != "" &&
				strings.TrimSpace(cfg.LLM.ClientSecret) != "" &&
				strings.TrimSpace(cfg.LLM.APIBase) != ""

			fmt.Println("LLM credentials:", status(llmReady))
			fmt.Println("Serve ready:", status(dbReady))
			fmt.Println("Chat ready:", status(llmReady))
			return nil
		},
	}
}
