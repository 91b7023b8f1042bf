// Package main is the entry point for the meditreat CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meditreat/meditreat/internal/config"
	"github.com/meditreat/meditreat/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "meditreat",
		Short:         "Medical chatbot backend with history-aware replies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.AddCommand(versionCmd(), startCmd(), configCmd(), initCmd(), serviceCmd(), mcpCmd())
	return root
}

func runParams(cmd *cobra.Command) app.RunParams {
	path, _ := cmd.Flags().GetString("config")
	return app.RunParams{ConfigPath: path, Version: version, Commit: commit, Date: date}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "meditreat %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Serve the chat API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(runParams(cmd))
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the assistant as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunMCP(cmd.Context(), runParams(cmd), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit, _ := cmd.Flags().GetString("config")
			if len(args) == 1 {
				explicit = args[0]
			}
			cfg, path, err := app.LoadConfig(explicit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%s)\n", path)
			fmt.Fprintf(out, "  storage:   %s\n", cfg.Storage.Backend)
			fmt.Fprintf(out, "  default:   %s\n", cfg.LLM.Default)
			for _, p := range cfg.LLM.Providers {
				fmt.Fprintf(out, "  provider:  %s (%s, %s)\n", p.Name, p.Type, p.Role)
			}
			fmt.Fprintf(out, "  web search: %t\n", cfg.WebSearch.Enabled)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file that would be used",
		RunE: func(cmd *cobra.Command, _ []string) error {
			explicit, _ := cmd.Flags().GetString("config")
			path, err := config.Resolve(explicit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	return cmd
}
