package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/dbchat/pkg/config"
	"github.com/dotsetgreg/dbchat/pkg/logger"
	"github.com/dotsetgreg/dbchat/pkg/mcpserver"
	"github.com/dotsetgreg/dbchat/pkg/store"
	"github.com/dotsetgreg/dbchat/pkg/tools"
)

func newServeCommand(loadCfg func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose database CRUD tools as an MCP server on stdio",
		Long: "Open the configured database and answer MCP requests on stdin/stdout " +
			"until the input stream closes. Logs go to stderr.",
		Example: "  dbchat serve\n  DBCHAT_DB_DRIVER=postgres dbchat serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCfg()
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}

			st, err := store.Open(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			registry := tools.NewToolRegistry()
			tools.RegisterDatabaseTools(registry, st)

			logger.InfoCF("server", "Tool server ready",
				map[string]interface{}{
					"driver": cfg.Database.Driver,
					"tools":  registry.Count(),
				})

			srv := mcpserver.New(registry, os.Stdin, os.Stdout, appName, formatVersion())
			return srv.Serve(cmd.Context())
		},
	}
}
