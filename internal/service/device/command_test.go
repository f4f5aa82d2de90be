package device

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDeviceName(t *testing.T) {
	t.Parallel()

	got, err := resolveDeviceName("config-name", "cli-name")
	require.NoError(t, err)
	require.Equal(t, "cli-name", got)

	got, err = resolveDeviceName("config-name", "")
	require.NoError(t, err)
	require.Equal(t, "config-name", got)

	hostname, err := os.Hostname()
	require.NoError(t, err)

	got, err = resolveDeviceName("", "")
	require.NoError(t, err)
	require.Equal(t, hostname, got)
}
