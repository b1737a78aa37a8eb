package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/mindgraph/internal/cli"
	"github.com/aretw0/mindgraph/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "mindgraph",
	Short: "mindgraph is a graph workflow engine for journaling assistants",
	Long: `mindgraph runs a tool-calling conversation and a reflection pipeline over
checkpointed graph workflows, and serves them over HTTP, MCP or the terminal.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the configuration file (default ./"+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warning or error (overrides log.level)")
}

// loadApp reads the configuration named by the persistent flags and wires
// the engine. The caller closes the app.
func loadApp(cmd *cobra.Command) (*cli.App, *config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	level, _ := cmd.Flags().GetString("log-level")
	app, err := cli.NewApp(cfg, cli.NewLogger(cfg.Log, level))
	if err != nil {
		return nil, nil, err
	}
	return app, cfg, nil
}
