package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/dotsetgreg/dbchat/pkg/chat"
	"github.com/dotsetgreg/dbchat/pkg/config"
	"github.com/dotsetgreg/dbchat/pkg/connectors"
	"github.com/dotsetgreg/dbchat/pkg/providers"
)

func newChatCommand(loadCfg func() (*config.Config, error)) *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "chat [server-command [args...]]",
		Short: "Converse with a database through a tool server",
		Long: strings.TrimSpace(`Start an interactive session against a tool server. The server is either
spawned as a child process speaking MCP on stdio, or reached over HTTP with --url.

Type 'quit' or 'exit' to leave, '/refresh-schema' to re-read the database schema.`),
		Example: strings.Join([]string{
			"  dbchat chat dbchat serve",
			"  dbchat chat python server.py",
			"  dbchat chat --url http://localhost:8080/mcp",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCfg()
			if err != nil {
				return err
			}
			if err := cfg.ValidateChat(); err != nil {
				return err
			}

			mcpCfg := connectors.MCPConfig{
				TimeoutSeconds:   cfg.Connector.TimeoutSeconds,
				RetryMaxAttempts: cfg.Connector.RetryMaxAttempts,
				RetryBackoffMS:   cfg.Connector.RetryBackoffMS,
			}
			if strings.TrimSpace(serverURL) != "" {
				mcpCfg.Transport = "streamable_http"
				mcpCfg.URL = serverURL
			} else {
				if len(args) == 0 {
					return fmt.Errorf("a server command or --url is required")
				}
				mcpCfg.Transport = "stdio"
				mcpCfg.Command = args[0]
				mcpCfg.Args = args[1:]
			}

			runtime, err := connectors.NewMCPRuntime(appName, mcpCfg)
			if err != nil {
				return err
			}
			defer runtime.Close()

			provider, err := providers.NewFromConfig(cfg)
			if err != nil {
				return err
			}

			session, err := chat.NewSession(cmd.Context(), runtime, provider, cfg)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(session.Tools()))
			for _, d := range session.Tools() {
				names = append(names, d.Name)
			}
			fmt.Printf("Connected to server with tools: %s\n", strings.Join(names, ", "))
			fmt.Println("Type your queries, 'quit' or 'exit' to leave.")

			interactiveMode(cmd.Context(), session)
			return nil
		},
	}

	cmd.Flags().StringVarP(&serverURL, "url", "u", "", "Tool server URL (streamable HTTP transport)")
	return cmd
}

func interactiveMode(ctx context.Context, session *chat.Session) {
	prompt := "Query: "

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".dbchat_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(ctx, session)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if done := handleLine(ctx, session, line); done {
			return
		}
	}
}

func simpleInteractiveMode(ctx context.Context, session *chat.Session) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("Query: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if done := handleLine(ctx, session, line); done {
			return
		}
	}
}

// handleLine processes one line of user input; it reports true when the
// session should end.
func handleLine(ctx context.Context, session *chat.Session, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	switch strings.ToLower(input) {
	case "quit", "exit":
		fmt.Println("Goodbye!")
		return true
	case "/refresh-schema":
		if err := session.RefreshSchema(ctx); err != nil {
			fmt.Printf("Error refreshing schema: %v\n", err)
		} else {
			fmt.Println("Schema cache refreshed.")
		}
		return false
	}

	response, err := session.ProcessQuery(ctx, input)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return false
	}
	fmt.Printf("\n%s\n\n", response)
	return false
}
