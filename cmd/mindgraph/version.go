package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/mindgraph"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of mindgraph",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mindgraph version %s\n", mindgraph.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
