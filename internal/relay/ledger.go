package relay

import (
	"sync"
	"time"

	"github.com/oshokin/sos-relay/internal/domain/alert"
)

const (
	// ledgerCapacity is the maximum number of stored alerts; the oldest
	// entry is dropped on overflow.
	ledgerCapacity = 100
	// dedupCapacity is the maximum number of remembered alert ids before
	// a bulk trim runs.
	dedupCapacity = 500
	// dedupRetainAfterTrim is how many of the most recent ids survive a
	// bulk trim. Trimming in bulk rather than per insert keeps the
	// amortized cost of Submit constant.
	dedupRetainAfterTrim = 250
	// DefaultRecentLimit is how many alerts Recent returns when the
	// caller does not say.
	DefaultRecentLimit = 20
)

// AlertLedger keeps a bounded history of accepted alerts plus an
// independent deduplication window of previously seen alert ids.
type AlertLedger struct {
	// mu protects concurrent access to the ledger and dedup window.
	mu sync.Mutex
	// alerts holds accepted alerts, newest first.
	alerts []*alert.Alert
	// seen is the dedup window membership set.
	seen map[string]struct{}
	// seenOrder holds dedup ids oldest first, for bulk trimming.
	seenOrder []string
}

// NewAlertLedger creates an empty ledger.
func NewAlertLedger() *AlertLedger {
	return &AlertLedger{
		seen: make(map[string]struct{}),
	}
}

// Submit records the submission unless its id was already seen.
// A duplicate id returns (nil, true) and mutates nothing. Otherwise the
// submission is normalized, prepended to the capped history, and the
// accepted alert is returned.
func (l *AlertLedger) Submit(sub alert.Submission, originSession string) (*alert.Alert, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sub.ID != "" {
		if _, dup := l.seen[sub.ID]; dup {
			return nil, true
		}
	}

	a := alert.Normalize(sub, originSession, time.Now())

	l.seen[a.ID] = struct{}{}
	l.seenOrder = append(l.seenOrder, a.ID)
	l.trimSeenLocked()

	l.alerts = append([]*alert.Alert{a}, l.alerts...)
	if len(l.alerts) > ledgerCapacity {
		l.alerts = l.alerts[:ledgerCapacity]
	}

	return a.Clone(), false
}

// Recent returns up to limit alerts, newest first. A non-positive limit
// falls back to DefaultRecentLimit.
func (l *AlertLedger) Recent(limit int) []*alert.Alert {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limit > len(l.alerts) {
		limit = len(l.alerts)
	}

	result := make([]*alert.Alert, 0, limit)
	for _, a := range l.alerts[:limit] {
		result = append(result, a.Clone())
	}

	return result
}

// Len returns the number of stored alerts.
func (l *AlertLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.alerts)
}

// SeenCount returns the current dedup window size.
func (l *AlertLedger) SeenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.seen)
}

// trimSeenLocked bulk-trims the dedup window once it grows past capacity,
// retaining only the most recent ids. Callers must hold mu.
func (l *AlertLedger) trimSeenLocked() {
	if len(l.seenOrder) <= dedupCapacity {
		return
	}

	keep := l.seenOrder[len(l.seenOrder)-dedupRetainAfterTrim:]
	l.seenOrder = append([]string(nil), keep...)

	l.seen = make(map[string]struct{}, len(l.seenOrder))
	for _, id := range l.seenOrder {
		l.seen[id] = struct{}{}
	}
}
