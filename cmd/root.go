package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "playd",
	Short: "playd is a local music playback daemon.",
	Long: `playd owns a single audio pipeline and a play queue, and exposes a
line-based control protocol on a UNIX domain socket. Run it bare (or via
the daemon subcommand) to start the daemon; use ctl to talk to one.`,
	Run: func(cmd *cobra.Command, args []string) {
		runDaemon()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
