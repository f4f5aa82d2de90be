package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestNormalize_Defaults verifies synthetic ids and field defaulting.
func TestNormalize_Defaults(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)

	a := Normalize(Submission{Lat: 1, Lon: 2}, "sess-1", now)

	require.NotEmpty(t, a.ID)
	require.Equal(t, "sess-1", a.OriginSession)
	require.Equal(t, DefaultReporter, a.Reporter)
	require.Equal(t, DefaultMessage, a.Message)
	require.Equal(t, DefaultPriority, a.Priority)
	require.Equal(t, now, a.ReceivedAt)

	// Two normalized submissions without ids never collide.
	b := Normalize(Submission{}, "sess-1", now)
	require.NotEqual(t, a.ID, b.ID)
}

// TestNormalize_SuppliedFields verifies supplied fields survive untouched.
func TestNormalize_SuppliedFields(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	sub := Submission{
		ID:       "device-1-abc",
		Reporter: "Jamie",
		Lat:      55.7,
		Lon:      37.6,
		Message:  "need help",
		Priority: "high",
	}

	a := Normalize(sub, "sess-2", now)

	require.Equal(t, sub.ID, a.ID)
	require.Equal(t, sub.Reporter, a.Reporter)
	require.Equal(t, sub.Message, a.Message)
	require.Equal(t, sub.Priority, a.Priority)
	require.InDelta(t, sub.Lat, a.Lat, 0.001)
	require.InDelta(t, sub.Lon, a.Lon, 0.001)
}
