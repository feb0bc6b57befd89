package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/statecast/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a statecast configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  statecast validate -c config.yaml
  statecast validate --config /etc/statecast/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	seedUsers, seedMessages := "built-in", "built-in"
	if cfg.Seed != nil {
		seedUsers = fmt.Sprintf("%d", len(cfg.Seed.Users))
		seedMessages = fmt.Sprintf("%d", len(cfg.Seed.Messages))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:           %d\n", cfg.Port)
	fmt.Fprintf(out, "  Log level:      %s\n", cfg.LogLevel)
	fmt.Fprintf(out, "  Metrics:        %t\n", cfg.Metrics)
	fmt.Fprintf(out, "  Delays:         load %s, active %s, operation %s\n",
		cfg.UsersLoadDelay.Duration(), cfg.ActiveUsersDelay.Duration(), cfg.OperationDelay.Duration())
	fmt.Fprintf(out, "  Failure rate:   %g\n", cfg.OperationFailureRate)
	fmt.Fprintf(out, "  Seed users:     %s\n", seedUsers)
	fmt.Fprintf(out, "  Seed messages:  %s\n", seedMessages)

	return nil
}
