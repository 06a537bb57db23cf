package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "larkws",
		Short: "Receive open platform events over a persistent WebSocket",
		Long: `larkws keeps a long-lived push connection to the open platform,
acknowledges every event it receives and fans the events out to Redis
Pub/Sub or the log.

Configuration is read from config.yaml in ., ./config or /etc/larkws and
from LARKWS_* environment variables, e.g. LARKWS_APP_ID.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		tailCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
