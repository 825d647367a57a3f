// Mjumbe is a multi-shard gateway session client.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mjumbe",
	Short: "Mjumbe, a resilient multi-shard gateway session client.",
	Long: `Mjumbe maintains a fleet of sharded gateway sessions: it identifies or
resumes each shard, keeps the heartbeat contract, reconnects with backoff
when connections degrade, and streams dispatch events to a consumer in
wire order.`,
	RunE:          runFleet, // Default to run mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd, checkCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
