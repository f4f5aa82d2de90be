package relay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveListenAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		configAddr string
		override   string
		expected   string
		wantErr    bool
	}{
		{
			name:     "override wins",
			override: ":9090",
			expected: ":9090",
		},
		{
			name:       "port extracted from config",
			configAddr: "relay.example.com:8080",
			expected:   ":8080",
		},
		{
			name:    "empty config without override",
			wantErr: true,
		},
		{
			name:       "malformed config address",
			configAddr: "no-port-here",
			wantErr:    true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := resolveListenAddress(tc.configAddr, tc.override)
			if tc.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expected, got)
		})
	}
}
