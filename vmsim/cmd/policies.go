package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/vmsim/mem/vm/replacement"
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "List the page replacement policies.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		for _, k := range replacement.Kinds() {
			fmt.Fprintf(cmd.OutOrStdout(), "%-14s %s\n", k, k.Description())
		}
	},
}

func init() {
	rootCmd.AddCommand(policiesCmd)
}
