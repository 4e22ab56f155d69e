package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/dbchat/pkg/config"
	"github.com/dotsetgreg/dbchat/pkg/logger"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var (
		showVersion bool
		configPath  string
		debug       bool
	)

	root := &cobra.Command{
		Use:   "dbchat",
		Short: "Talk to a relational database in plain language over MCP tools",
		Long: strings.TrimSpace(`dbchat pairs a stdio tool server exposing CRUD tools over a database
with a conversational client that turns natural-language requests into tool calls.

Run 'dbchat serve' to expose a database, and 'dbchat chat' to converse with one.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debug {
				logger.SetLevel(logger.DEBUG)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.dbchat/config.json)")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	loadCfg := func() (*config.Config, error) {
		return config.LoadConfig(resolveConfigPath(configPath))
	}

	root.AddCommand(newServeCommand(loadCfg))
	root.AddCommand(newChatCommand(loadCfg))
	root.AddCommand(newStatusCommand(loadCfg, func() string { return resolveConfigPath(configPath) }))
	root.AddCommand(newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  dbchat version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}

func resolveConfigPath(override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dbchat", "config.json")
}
