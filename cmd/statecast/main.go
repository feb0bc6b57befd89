// Package main is the entry point for the statecast CLI.
//
// statecast can be used as a library or run as a standalone binary that
// serves the store over HTTP. This CLI provides the standalone binary.
//
// Usage:
//
//	statecast serve -c config.yaml    # Start the dashboard and API
//	statecast demo                    # Run a scripted session in the terminal
//	statecast validate -c config.yaml # Validate configuration
//	statecast version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "statecast",
	Short: "A reactive users and messages store with live views",
	Long: `statecast keeps users, a message log and a busy flag in one store and
pushes every change to its subscribers in order.

The serve command exposes the store as a JSON API, a Server-Sent Events
stream, a WebSocket and a live dashboard.

Quick start:
  1. Run: statecast serve
  2. Open http://localhost:8080 in your browser

Example config:
  title: Users & Messages
  port: 8080
  operation_delay: 2s
  seed:
    users:
      - name: Ana García
        email: ana@example.com`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this statecast binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "statecast %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
