package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestValidate checks required fields, format validation and defaulting.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing socket.
	cfg := new(Config)

	err := Validate(cfg)
	require.Error(t, err)

	// Bad socket.
	cfg = &Config{
		ServerAddress: "bad:address",
	}

	err = Validate(cfg)
	require.Error(t, err)

	// Okay, defaults applied.
	cfg = &Config{
		ServerAddress: "127.0.0.1:0",
	}

	err = Validate(cfg)
	require.NoError(t, err)
	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.Equal(t, DefaultReconnectMaxAttempts, cfg.ReconnectMaxAttempts)
	require.Equal(t, DefaultReconnectBaseDelay, cfg.ReconnectBaseDelay)
	require.Equal(t, DefaultReconnectMaxDelay, cfg.ReconnectMaxDelay)
	require.InDelta(t, DefaultEventsPerSecond, cfg.EventsPerSecond, 0.001)
	require.Equal(t, DefaultEventBurst, cfg.EventBurst)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	cfg := &Config{
		ServerAddress: "127.0.0.1:50051",
		DeviceName:    "field-unit-7",
	}

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.ServerAddress, loaded.ServerAddress)
	require.Equal(t, cfg.DeviceName, loaded.DeviceName)

	// File exists.
	_, err = os.Stat(path)
	require.NoError(t, err)
}
