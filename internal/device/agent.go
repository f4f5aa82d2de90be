package device

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/oshokin/sos-relay/internal/domain/alert"
	"github.com/oshokin/sos-relay/internal/domain/geofence"
	"github.com/oshokin/sos-relay/internal/domain/session"
	"github.com/oshokin/sos-relay/internal/logger"
	"github.com/oshokin/sos-relay/internal/protocol"
)

// positionSample is one JSON line of position input.
type positionSample struct {
	// Lat is the sampled latitude in degrees.
	Lat float64 `json:"lat"`
	// Lon is the sampled longitude in degrees.
	Lon float64 `json:"lon"`
}

// AgentOptions configures a device agent.
type AgentOptions struct {
	// Client is the relay transport, required.
	Client *Client
	// DeviceName is how the device introduces itself to the relay.
	DeviceName string
	// Platform is reported on identify, e.g. runtime.GOOS.
	Platform string
	// Samples is the stream of JSON-line position samples, usually stdin.
	// May be nil when the device has no position source.
	Samples io.Reader
	// SOSOnStart triggers an emergency alert right after the first
	// successful identification.
	SOSOnStart bool
}

// Agent runs the device side of the relay protocol: it keeps the
// connection identified, feeds position samples through the geofence
// monitor, reports violations, and submits emergency alerts.
type Agent struct {
	client     *Client
	monitor    *Monitor
	submitter  *Submitter
	samples    io.Reader
	deviceName string
	platform   string
	sosOnStart bool

	// mu protects the last known position.
	mu sync.Mutex
	// lastLat and lastLon are the most recent sampled coordinates,
	// used when an SOS is triggered between samples.
	lastLat float64
	lastLon float64
}

// NewAgent wires a monitor and a submitter around the given client.
func NewAgent(opts *AgentOptions) *Agent {
	a := &Agent{
		client:     opts.Client,
		monitor:    NewMonitor(opts.DeviceName),
		samples:    opts.Samples,
		deviceName: opts.DeviceName,
		platform:   opts.Platform,
		sosOnStart: opts.SOSOnStart,
	}

	a.submitter = NewSubmitter(opts.DeviceName, opts.DeviceName, a, func(err error) {
		logger.ErrorKV(context.Background(), "Emergency alert failed", "error", err)
	})

	return a
}

// Connected implements the submitter's transport contract.
func (a *Agent) Connected() bool {
	return a.client.Connected()
}

// SendAlert implements the submitter's transport contract.
func (a *Agent) SendAlert(ctx context.Context, sub *alert.Submission) error {
	env, err := protocol.NewEnvelope(protocol.KindSOS, protocol.SOS{
		AlertID:  sub.ID,
		Reporter: sub.Reporter,
		Lat:      sub.Lat,
		Lon:      sub.Lon,
		Message:  sub.Message,
		Priority: sub.Priority,
	})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	return a.client.Send(ctx, env)
}

// TriggerSOS submits an emergency alert from the last known position.
func (a *Agent) TriggerSOS(ctx context.Context) (string, error) {
	a.mu.Lock()
	lat, lon := a.lastLat, a.lastLon
	a.mu.Unlock()

	return a.submitter.Trigger(ctx, lat, lon, alert.DefaultMessage)
}

// Run connects to the relay and serves events until the context is
// cancelled or the relay stays unreachable past the reconnection cap.
func (a *Agent) Run(ctx context.Context) error {
	defer a.submitter.Shutdown()
	defer func() {
		if err := a.client.Close(); err != nil {
			logger.ErrorKV(ctx, "Failed to close relay connection", "error", err)
		}
	}()

	if a.samples != nil {
		go a.readSamples(ctx)
	}

	for {
		if err := a.client.ConnectWithRetry(ctx); err != nil {
			return err
		}

		if err := a.identify(ctx); err != nil {
			logger.ErrorKV(ctx, "Identification failed", "error", err)
		} else if a.sosOnStart {
			a.sosOnStart = false
			a.triggerStartupSOS(ctx)
		}

		a.readLoop(ctx)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.WarnKV(ctx, "Relay connection lost, reconnecting")
	}
}

// identify declares this connection as a mobile device.
func (a *Agent) identify(ctx context.Context) error {
	env, err := protocol.NewEnvelope(protocol.KindIdentify, protocol.Identify{
		Role:        string(session.RoleMobile),
		DisplayName: a.deviceName,
		Platform:    a.platform,
	})
	if err != nil {
		return fmt.Errorf("encode identify: %w", err)
	}

	if err := a.client.Send(ctx, env); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Identified with relay", "device", a.deviceName, "platform", a.platform)

	return nil
}

// triggerStartupSOS fires the one-shot startup alert.
func (a *Agent) triggerStartupSOS(ctx context.Context) {
	id, err := a.TriggerSOS(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Startup emergency alert rejected", "error", err)

		return
	}

	logger.InfoKV(ctx, "Startup emergency alert submitted", "alert_id", id)
}

// readLoop serves inbound relay events until the connection fails.
func (a *Agent) readLoop(ctx context.Context) {
	for {
		env, err := a.client.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.WarnKV(ctx, "Relay read failed", "error", err)
			}

			return
		}

		a.handleEvent(ctx, env)
	}
}

// handleEvent applies one relay event to local state.
func (a *Agent) handleEvent(ctx context.Context, env *protocol.Envelope) {
	switch env.Type {
	case protocol.KindAllGeofences:
		payload, err := protocol.DecodeData[protocol.AllGeofences](env)
		if err != nil {
			logger.ErrorKV(ctx, "Malformed geofence snapshot", "error", err)

			return
		}

		a.monitor.SetGeofences(payload.Geofences)
		logger.InfoKV(ctx, "Geofence snapshot applied", "count", len(payload.Geofences))

	case protocol.KindUpdateGeofence:
		fence, err := protocol.DecodeData[geofence.Geofence](env)
		if err != nil {
			logger.ErrorKV(ctx, "Malformed geofence update", "error", err)

			return
		}

		a.monitor.Upsert(fence)
		logger.InfoKV(ctx, "Geofence updated", "geofence_id", fence.ID)

	case protocol.KindDeleteGeofence:
		payload, err := protocol.DecodeData[protocol.DeleteGeofence](env)
		if err != nil {
			logger.ErrorKV(ctx, "Malformed geofence deletion", "error", err)

			return
		}

		a.monitor.Remove(payload.ID)
		logger.InfoKV(ctx, "Geofence removed", "geofence_id", payload.ID)

	case protocol.KindSOSConfirmation:
		payload, err := protocol.DecodeData[protocol.SOSConfirmation](env)
		if err != nil {
			logger.ErrorKV(ctx, "Malformed alert confirmation", "error", err)

			return
		}

		a.submitter.Acknowledge(payload.AlertID)
		logger.InfoKV(ctx, "Emergency alert confirmed",
			"alert_id", payload.AlertID,
			"recipients", payload.RecipientCount)

	case protocol.KindSOSAlert:
		logger.InfoKV(ctx, "Emergency broadcast received")

	case protocol.KindError:
		payload, err := protocol.DecodeData[protocol.ErrorMessage](env)
		if err != nil {
			logger.ErrorKV(ctx, "Malformed relay error", "error", err)

			return
		}

		logger.ErrorKV(ctx, "Relay reported an error", "message", payload.Message)

	default:
		logger.DebugKV(ctx, "Ignoring relay event", "type", env.Type)
	}
}

// readSamples feeds JSON-line position samples through the monitor until
// the source drains or the context is cancelled. Cancellation closes a
// closable source so a Scan blocked on it unblocks.
func (a *Agent) readSamples(ctx context.Context) {
	if closer, ok := a.samples.(io.Closer); ok {
		done := make(chan struct{})
		defer close(done)

		go func() {
			select {
			case <-ctx.Done():
				if err := closer.Close(); err != nil {
					logger.WarnKV(ctx, "Failed to close position sample source", "error", err)
				}
			case <-done:
			}
		}()
	}

	scanner := bufio.NewScanner(a.samples)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var sample positionSample

		if err := json.Unmarshal(line, &sample); err != nil {
			logger.WarnKV(ctx, "Skipping malformed position sample", "error", err)

			continue
		}

		a.handleSample(ctx, sample.Lat, sample.Lon)
	}

	if err := scanner.Err(); err != nil {
		// A close triggered by cancellation surfaces as a read error.
		if ctx.Err() != nil {
			return
		}

		logger.ErrorKV(ctx, "Position sample source failed", "error", err)

		return
	}

	logger.InfoKV(ctx, "Position sample source drained")
}

// handleSample records the position and reports any resulting boundary
// crossings to the relay.
func (a *Agent) handleSample(ctx context.Context, lat, lon float64) {
	a.mu.Lock()
	a.lastLat, a.lastLon = lat, lon
	a.mu.Unlock()

	for _, v := range a.monitor.Observe(ctx, lat, lon) {
		env, err := protocol.NewEnvelope(protocol.KindGeofenceViolation, protocol.ViolationReport{
			Action:       string(v.Action),
			GeofenceID:   v.GeofenceID,
			GeofenceName: v.GeofenceName,
			Lat:          v.Lat,
			Lng:          v.Lng,
			Priority:     v.Priority,
		})
		if err != nil {
			logger.ErrorKV(ctx, "Encode violation report failed", "error", err)

			continue
		}

		if err := a.client.Send(ctx, env); err != nil {
			logger.ErrorKV(ctx, "Violation report send failed",
				"geofence_id", v.GeofenceID,
				"error", err)
		}
	}
}
