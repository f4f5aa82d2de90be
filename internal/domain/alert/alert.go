package alert

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultReporter is used when a submission does not name its reporter.
	DefaultReporter = "unknown"
	// DefaultMessage is used when a submission carries no free-text message.
	DefaultMessage = "SOS emergency alert"
	// DefaultPriority is used when a submission carries no priority.
	DefaultPriority = "critical"
)

// Submission is the raw SOS payload as submitted by a device.
type Submission struct {
	// ID is the submission-supplied alert id; empty means the relay
	// assigns a synthetic one.
	ID string
	// Reporter identifies who raised the alert.
	Reporter string
	// Lat is the reported latitude.
	Lat float64
	// Lon is the reported longitude.
	Lon float64
	// Message is the optional free-text message.
	Message string
	// Priority is the optional alert priority.
	Priority string
}

// Alert is a normalized, accepted SOS alert. The ID is the deduplication
// key: a second submission with the same id is a silent no-op.
type Alert struct {
	// ID uniquely identifies the alert.
	ID string `json:"alertId"`
	// OriginSession is the session the alert arrived on.
	OriginSession string `json:"originSession,omitempty"`
	// Reporter identifies who raised the alert.
	Reporter string `json:"reporter"`
	// Lat is the reported latitude.
	Lat float64 `json:"lat"`
	// Lon is the reported longitude.
	Lon float64 `json:"lon"`
	// Message is the free-text message.
	Message string `json:"message"`
	// Priority is the alert priority.
	Priority string `json:"priority"`
	// ReceivedAt is when the relay accepted the alert.
	ReceivedAt time.Time `json:"receivedAt"`
}

// Normalize turns a submission into a stored alert, assigning a synthetic
// id and filling defaults for any missing fields.
func Normalize(sub Submission, originSession string, now time.Time) *Alert {
	a := &Alert{
		ID:            sub.ID,
		OriginSession: originSession,
		Reporter:      sub.Reporter,
		Lat:           sub.Lat,
		Lon:           sub.Lon,
		Message:       sub.Message,
		Priority:      sub.Priority,
		ReceivedAt:    now,
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	if a.Reporter == "" {
		a.Reporter = DefaultReporter
	}

	if a.Message == "" {
		a.Message = DefaultMessage
	}

	if a.Priority == "" {
		a.Priority = DefaultPriority
	}

	return a
}

// Clone returns a copy of the alert to avoid leaking internal references.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}
