package device

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/oshokin/sos-relay/internal/config"
	"github.com/oshokin/sos-relay/internal/device"
	"github.com/oshokin/sos-relay/internal/logger"
)

// Options configures the device agent process.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string

	// ServerAddress overrides the relay address from config when specified.
	ServerAddress string

	// DeviceName overrides the device name from config when specified.
	DeviceName string

	// SOSOnStart triggers an emergency alert right after the first
	// successful connection.
	SOSOnStart bool
}

// Run starts the device agent and blocks until the context is canceled or
// the relay stays unreachable past the reconnection cap. SIGUSR1 triggers
// an emergency alert while the agent runs.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "relay-device")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	deviceName, err := resolveDeviceName(cfg.DeviceName, opts.DeviceName)
	if err != nil {
		return fmt.Errorf("resolve device name: %w", err)
	}

	client := device.NewClient(serverAddress,
		device.WithWriteTimeout(cfg.Timeout),
		device.WithBackoff(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, cfg.ReconnectMaxAttempts))

	agent := device.NewAgent(&device.AgentOptions{
		Client:     client,
		DeviceName: deviceName,
		Platform:   runtime.GOOS,
		Samples:    os.Stdin,
		SOSOnStart: opts.SOSOnStart,
	})

	logger.InfoKV(ctx, "Starting device agent",
		"server_address", serverAddress,
		"device_name", deviceName)

	sosSignals := make(chan os.Signal, 1)
	signal.Notify(sosSignals, syscall.SIGUSR1)

	defer signal.Stop(sosSignals)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sosSignals:
				id, err := agent.TriggerSOS(ctx)
				if err != nil {
					logger.ErrorKV(ctx, "Emergency alert rejected", "error", err)

					continue
				}

				logger.InfoKV(ctx, "Emergency alert submitted", "alert_id", id)
			}
		}
	}()

	return agent.Run(ctx)
}

// resolveDeviceName picks the device name: CLI override, then config, then
// the machine hostname.
func resolveDeviceName(configName, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configName != "" {
		return configName, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("detect hostname: %w", err)
	}

	return hostname, nil
}
