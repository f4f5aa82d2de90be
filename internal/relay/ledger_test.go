package relay

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sos-relay/internal/domain/alert"
)

// TestAlertLedger_SubmitAndDedup verifies idempotent acceptance: the same
// id yields exactly one ledger entry.
func TestAlertLedger_SubmitAndDedup(t *testing.T) {
	t.Parallel()

	l := NewAlertLedger()

	first, dup := l.Submit(alert.Submission{ID: "a1", Reporter: "Unit 7"}, "s1")
	require.False(t, dup)
	require.Equal(t, "a1", first.ID)
	require.Equal(t, 1, l.Len())

	second, dup := l.Submit(alert.Submission{ID: "a1", Reporter: "Unit 7"}, "s1")
	require.True(t, dup)
	require.Nil(t, second)
	require.Equal(t, 1, l.Len())
}

// TestAlertLedger_SyntheticIDs checks submissions without ids are always accepted.
func TestAlertLedger_SyntheticIDs(t *testing.T) {
	t.Parallel()

	l := NewAlertLedger()

	a, dup := l.Submit(alert.Submission{}, "s1")
	require.False(t, dup)
	require.NotEmpty(t, a.ID)

	b, dup := l.Submit(alert.Submission{}, "s1")
	require.False(t, dup)
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, 2, l.Len())
}

// TestAlertLedger_Capacity ensures the ledger never exceeds 100 entries
// and keeps the newest ones.
func TestAlertLedger_Capacity(t *testing.T) {
	t.Parallel()

	l := NewAlertLedger()

	for i := range 150 {
		_, dup := l.Submit(alert.Submission{ID: fmt.Sprintf("a%d", i)}, "s1")
		require.False(t, dup)
		require.LessOrEqual(t, l.Len(), 100)
	}

	require.Equal(t, 100, l.Len())

	recent := l.Recent(1)
	require.Len(t, recent, 1)
	require.Equal(t, "a149", recent[0].ID)
}

// TestAlertLedger_DedupWindowTrim ensures the dedup window never exceeds
// 500 ids before a bulk trim brings it down to 250 or fewer.
func TestAlertLedger_DedupWindowTrim(t *testing.T) {
	t.Parallel()

	l := NewAlertLedger()

	for i := range 501 {
		l.Submit(alert.Submission{ID: fmt.Sprintf("a%d", i)}, "s1")
	}

	require.Equal(t, 250, l.SeenCount())

	// Recent ids are retained, trimmed ones forgotten.
	_, dup := l.Submit(alert.Submission{ID: "a500"}, "s1")
	require.True(t, dup)

	_, dup = l.Submit(alert.Submission{ID: "a0"}, "s1")
	require.False(t, dup)
}

// TestAlertLedger_Recent verifies newest-first ordering and the limit fallback.
func TestAlertLedger_Recent(t *testing.T) {
	t.Parallel()

	l := NewAlertLedger()

	for i := range 30 {
		l.Submit(alert.Submission{ID: fmt.Sprintf("a%d", i)}, "s1")
	}

	recent := l.Recent(3)
	require.Len(t, recent, 3)
	require.Equal(t, "a29", recent[0].ID)
	require.Equal(t, "a28", recent[1].ID)
	require.Equal(t, "a27", recent[2].ID)

	// Non-positive limit falls back to the default.
	require.Len(t, l.Recent(0), DefaultRecentLimit)

	// Limit larger than the history returns everything.
	require.Len(t, l.Recent(1000), 30)
}
