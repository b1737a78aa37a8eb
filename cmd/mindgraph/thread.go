package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/mindgraph/pkg/domain"
)

var threadCmd = &cobra.Command{
	Use:     "thread",
	Aliases: []string{"threads"},
	Short:   "Manage persisted threads",
	Long: `List, inspect, resume and remove the threads held by the configured
checkpoint store. Threads started with --user belong to that user and are only
visible with the same --user.`,
}

func threadOwner(cmd *cobra.Command) domain.RunContext {
	user, _ := cmd.Flags().GetString("user")
	return domain.RunContext{UserID: user}
}

var threadLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		threads, err := app.Engine.Threads(cmd.Context(), threadOwner(cmd))
		if err != nil {
			return fmt.Errorf("error listing threads: %w", err)
		}
		if len(threads) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No threads found.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Threads:")
		for _, t := range threads {
			fmt.Fprintln(cmd.OutOrStdout(), "- "+t)
		}
		return nil
	},
}

var threadHistoryCmd = &cobra.Command{
	Use:   "history <thread-id>",
	Short: "Print the messages of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			msgs, err := app.Engine.UIHistory(cmd.Context(), args[0], threadOwner(cmd))
			if err != nil {
				return err
			}
			return printJSON(cmd, msgs)
		}

		msgs, err := app.Engine.History(cmd.Context(), args[0], threadOwner(cmd))
		if err != nil {
			return err
		}
		for _, m := range msgs {
			if !m.HasToolCalls() {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", m.Role, m.Content)
				continue
			}
			for _, c := range m.ToolCalls {
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] calls %s\n", m.Role, c.Name)
			}
		}
		return nil
	},
}

var threadInspectCmd = &cobra.Command{
	Use:   "inspect <thread-id>",
	Short: "Print the checkpoint history of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		metas, err := app.Engine.Checkpoints(cmd.Context(), args[0], threadOwner(cmd))
		if err != nil {
			return fmt.Errorf("error loading thread '%s': %w", args[0], err)
		}
		return printJSON(cmd, metas)
	},
}

var threadResumeCmd = &cobra.Command{
	Use:   "resume <thread-id>",
	Short: "Finish a run that was interrupted",
	Long: `Continues a thread from its latest checkpoint, for example after a crash
between tool calls. A thread whose last run finished is left unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		msgs, err := app.Engine.Resume(cmd.Context(), args[0], threadOwner(cmd))
		if err != nil {
			return fmt.Errorf("error resuming thread '%s': %w", args[0], err)
		}
		if last, ok := domain.LastMessage(msgs); ok {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", last.Role, last.Content)
		}
		return nil
	},
}

var threadRmCmd = &cobra.Command{
	Use:   "rm <thread-id>...",
	Short: "Remove one or more threads",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		failed := 0
		for _, id := range args {
			if err := app.Engine.DeleteThread(cmd.Context(), id, threadOwner(cmd)); err != nil {
				cmd.PrintErrf("Error removing '%s': %v\n", id, err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed thread '%s'\n", id)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d threads not removed", failed, len(args))
		}
		return nil
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	rootCmd.AddCommand(threadCmd)
	threadCmd.AddCommand(threadLsCmd)
	threadCmd.AddCommand(threadHistoryCmd)
	threadCmd.AddCommand(threadInspectCmd)
	threadCmd.AddCommand(threadResumeCmd)
	threadCmd.AddCommand(threadRmCmd)
	threadCmd.PersistentFlags().StringP("user", "u", "", "Owner of the threads")
	threadHistoryCmd.Flags().Bool("json", false, "Print the history as AI SDK UI messages")
}
