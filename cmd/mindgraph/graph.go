package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:       "graph [chat|reflection]",
	Short:     "Export the workflow graphs as Mermaid diagrams",
	Long:      `Outputs a Mermaid diagram (graph TD) of the conversation graph, the reflection pipeline, or both.`,
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"chat", "reflection"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		which := ""
		if len(args) == 1 {
			which = args[0]
		}
		out := cmd.OutOrStdout()
		if which == "" || which == "chat" {
			fmt.Fprint(out, app.Engine.ChatGraph().Mermaid())
		}
		if which == "" {
			fmt.Fprintln(out)
		}
		if which == "" || which == "reflection" {
			fmt.Fprint(out, app.Engine.ReflectionGraph().Mermaid())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
