// Package cmd provides the command-line interface of vmsim.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var rootCmd = &cobra.Command{
	Use:   "vmsim",
	Short: "vmsim simulates a tiny CPU running out of demand-paged memory.",
	Long: `vmsim runs a program on a small CPU whose memory is virtual. Pages
live in a few physical frames and are swapped to a simulated disk on demand.
The page replacement policy is one of FIFO, second chance or optimal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Exit handlers registered with atexit run before the process
// exits.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmsim: %v\n", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
