package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/mindgraph/pkg/domain"
)

var reflectCmd = &cobra.Command{
	Use:   "reflect <thread-id> <message>...",
	Short: "Run the reflection pipeline over a message",
	Long: `Extracts themes, emotions and goals from the message and connects them.
Running it again on the same thread revises the previous graph, using the
message as feedback.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		user, _ := cmd.Flags().GetString("user")
		g, err := app.Engine.Reflect(cmd.Context(), args[0], strings.Join(args[1:], " "), domain.RunContext{UserID: user})
		if err != nil {
			return err
		}
		return printJSON(cmd, g)
	},
}

func init() {
	rootCmd.AddCommand(reflectCmd)
	reflectCmd.Flags().StringP("user", "u", "", "Owner of the thread whose thoughts provide context")
}
