package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sos-relay/internal/config"
)

// TestInitSubcommand checks that "init" persists a settings file the agent
// can load back.
func TestInitSubcommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"init", "127.0.0.1:8080", "--config", path, "--name", "field-unit-3"})

	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), path)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8080", loaded.ServerAddress)
	require.Equal(t, "field-unit-3", loaded.DeviceName)
}
