package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sos-relay/internal/config"
	"github.com/oshokin/sos-relay/internal/service/device"
	"github.com/oshokin/sos-relay/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// deviceName overrides the device name from config.
	deviceName string
	// sosOnStart triggers an emergency alert right after connecting.
	sosOnStart bool

	// rootCmd represents the base command for running the device agent.
	rootCmd = &cobra.Command{
		Use:   "relay-device [server-address]",
		Short: "Run the mobile safety device agent.",
		Long: `Starts the device agent that connects to the relay server, monitors
geofences against position samples read from stdin (one JSON object with
"lat" and "lon" per line), and submits emergency alerts.

The relay address comes from the configuration file unless provided as an
argument (e.g., relay.example.com:8080). Sending SIGUSR1 to the running
agent triggers an emergency alert.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use server address argument if provided, otherwise rely on config.
			var serverAddress string
			if len(args) > 0 {
				serverAddress = args[0]
			}

			options := &device.Options{
				ConfigPath:    configPath,
				ServerAddress: serverAddress,
				DeviceName:    deviceName,
				SOSOnStart:    sosOnStart,
			}

			return device.Run(ctx, options)
		},
	}
)

// Execute runs the relay-device CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&deviceName, "name", "n", "", "device name reported to the relay")
	rootCmd.Flags().BoolVar(&sosOnStart, "sos-on-start", false, "trigger an emergency alert after connecting")

	rootCmd.AddCommand(initCmd)
}
