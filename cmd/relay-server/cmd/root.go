package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sos-relay/internal/config"
	"github.com/oshokin/sos-relay/internal/service/relay"
	"github.com/oshokin/sos-relay/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string

	// rootCmd represents the base command for running the relay server.
	rootCmd = &cobra.Command{
		Use:   "relay-server [listen-address]",
		Short: "Run the emergency-signal relay server.",
		Long: `Starts the relay server that fans emergency alerts, geofence changes, and
violation reports out to connected consoles over websockets.

The server listens on the specified address or uses settings from the
configuration file. Only the port from server_addr config is used for
listening (e.g., :8080). A listen address argument overrides the config
(e.g., :9090, 0.0.0.0:8080).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use listen address argument if provided, otherwise rely on config.
			var listenAddress string
			if len(args) > 0 {
				listenAddress = args[0]
			}

			options := &relay.Options{
				ConfigPath:    configPath,
				ListenAddress: listenAddress,
			}

			return relay.Run(ctx, options)
		},
	}
)

// Execute runs the relay-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
}
