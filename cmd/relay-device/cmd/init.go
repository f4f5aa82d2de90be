package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/sos-relay/internal/config"
)

// initCmd writes a starter configuration file so the agent can later run
// without a server address argument.
var initCmd = &cobra.Command{
	Use:   "init <server-address>",
	Short: "Write a starter configuration file.",
	Long: `Writes a configuration file with the given relay address, so the agent
can later run without arguments. The file goes to the path given by
--config, and --name sets the persisted device name.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := &config.Config{
			ServerAddress: args[0],
			DeviceName:    deviceName,
		}

		if err := config.Save(configPath, settings); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}

		cmd.Printf("Configuration written to %s\n", configPath)

		return nil
	},
}
