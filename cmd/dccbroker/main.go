// DCCLite broker
//
// dccbroker is the session broker for DCCLite layout devices: it accepts
// device sessions over UDP, keeps decoder state synchronised and exposes
// the layout over MQTT, HTTP and WebSocket.
//
//	dccbroker run -c configs/config.yaml
//	dccbroker validate -c configs/config.yaml
//	dccbroker trace dump data/packets.trace --type HELLO
//	dccbroker token --subject alice --role operator
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "dccbroker",
		Short:         "DCCLite layout session broker",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(), "config file path")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the broker until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the configuration and devices file without starting",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runValidate(configPath, cmd.OutOrStdout())
			},
		},
		newTraceCmd(),
		newTokenCmd(&configPath),
	)
	return root
}

// getConfigPath returns the configuration file path.
// Uses DCCLITE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("DCCLITE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
