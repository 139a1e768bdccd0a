package alerting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plantpulse/plant-server/internal/metrics"
	"github.com/plantpulse/plant-server/internal/protocol"
	"github.com/plantpulse/plant-server/internal/telemetry"
	"github.com/plantpulse/plant-server/internal/threshold"
)

const deliveryTimeout = 30 * time.Second

// Breach is one evaluated threshold violation on a single channel.
type Breach struct {
	Channel protocol.Channel
	Level   threshold.Level
	Value   float64
	Band    threshold.Band
}

// Target identifies who an alert is about and where it goes.
type Target struct {
	UserID    string
	Recipient string
	PlantName string
}

// Dispatcher decides whether a breach becomes an outbound alert. Delivery is
// fire-and-forget: the polling loop must never block on, or fail because of,
// the delivery channel.
type Dispatcher struct {
	gate     *CooldownGate
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher sharing the process-wide gate.
func NewDispatcher(gate *CooldownGate, notifier Notifier, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		gate:     gate,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock replaces the wall clock. Intended for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Dispatch sends an alert for the breach if the snapshot represents a live
// device and the cooldown gate allows it. The gate is armed at the moment of
// the dispatch attempt; a later delivery failure does not re-arm it, so a
// degraded delivery channel cannot cause an alert storm.
func (d *Dispatcher) Dispatch(breach Breach, snapshot *telemetry.Snapshot, target Target) {
	if !breach.Level.Breaching() {
		return
	}
	// A device reporting offline may still carry stale numeric values; those
	// must never fire alerts.
	if snapshot == nil || !snapshot.Online {
		return
	}

	direction := protocol.DirectionHigh
	if breach.Level == threshold.TooLow {
		direction = protocol.DirectionLow
	}

	now := d.now()
	if !d.gate.TryAcquire(now) {
		metrics.AlertsSuppressed.WithLabelValues(string(breach.Channel), string(direction)).Inc()
		d.logger.Debug().
			Str("channel", string(breach.Channel)).
			Str("direction", string(direction)).
			Float64("value", breach.Value).
			Msg("alert suppressed by cooldown")
		return
	}

	alert := Alert{
		ID:        uuid.NewString(),
		UserID:    target.UserID,
		Channel:   breach.Channel,
		Direction: direction,
		Value:     breach.Value,
		Band:      breach.Band,
		Recipient: target.Recipient,
		PlantName: target.PlantName,
		FiredAt:   now,
	}

	metrics.AlertsDispatched.WithLabelValues(string(breach.Channel), string(direction)).Inc()
	d.logger.Info().
		Str("alert_id", alert.ID).
		Str("channel", string(alert.Channel)).
		Str("direction", string(alert.Direction)).
		Float64("value", alert.Value).
		Msg("alert dispatched")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		if err := d.notifier.Send(ctx, alert); err != nil {
			// Logged only. Never re-queued, never surfaced to the user, never
			// propagated to the polling loop.
			d.logger.Error().
				Err(err).
				Str("alert_id", alert.ID).
				Msg("alert delivery failed")
		}
	}()
}
