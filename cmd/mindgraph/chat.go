package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/mindgraph"
	"github.com/aretw0/mindgraph/internal/cli"
	"github.com/aretw0/mindgraph/internal/presentation/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant in the terminal",
	Long: `Starts an interactive conversation. Each line is one message; q, quit or
exit ends the session. Reuse --thread to continue an earlier conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		threadID, _ := cmd.Flags().GetString("thread")
		if threadID == "" {
			threadID = uuid.NewString()
		}
		user, _ := cmd.Flags().GetString("user")
		plain, _ := cmd.Flags().GetBool("plain")
		quiet, _ := cmd.Flags().GetBool("quiet")

		opts := cli.ChatOptions{
			ThreadID: threadID,
			UserID:   user,
			In:       cmd.InOrStdin(),
			Out:      cmd.OutOrStdout(),
			Quiet:    quiet,
		}
		if term.IsTerminal(int(os.Stdout.Fd())) {
			if !quiet {
				tui.PrintBanner(opts.Out, mindgraph.Version)
				fmt.Fprintf(opts.Out, ">>> Thread '%s' active.\n", threadID)
			}
			if !plain {
				opts.Render = tui.NewRenderer()
			}
		}

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		return cli.HandleExecutionError(cli.RunChat(sigCtx, app.Engine, opts))
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("thread", "t", "", "Thread id to continue (default: a new thread)")
	chatCmd.Flags().StringP("user", "u", "", "Owner of the thread, also passed to tools")
	chatCmd.Flags().Bool("plain", false, "Stream raw text instead of rendered markdown")
	chatCmd.Flags().BoolP("quiet", "q", false, "Hide the banner and tool activity")
}
