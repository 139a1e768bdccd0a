package poller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantpulse/plant-server/internal/alerting"
	"github.com/plantpulse/plant-server/internal/metrics"
	"github.com/plantpulse/plant-server/internal/protocol"
	"github.com/plantpulse/plant-server/internal/telemetry"
	"github.com/plantpulse/plant-server/internal/threshold"
)

// Fetcher reads device state from the telemetry cloud.
type Fetcher interface {
	Fetch(ctx context.Context, credential string) telemetry.Outcome
}

// AlertSink receives evaluated breaches.
type AlertSink interface {
	Dispatch(breach alerting.Breach, snapshot *telemetry.Snapshot, target alerting.Target)
}

// Publisher forwards successful readings downstream.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// Notices de-duplicates transient-error notices.
type Notices interface {
	ShouldNotify(ctx context.Context, userID, kind string) (bool, error)
	Clear(ctx context.Context, userID, kind string) error
}

// Bands holds the configured threshold band per channel.
type Bands struct {
	Temperature threshold.Band
	Humidity    threshold.Band
}

// Result is the latest authoritative poll state for display.
type Result struct {
	Credential string
	Outcome    *telemetry.Outcome
	Status     Status
	Notice     string // one-shot transient-error notice, empty when none
	UpdatedAt  time.Time
}

// Options carries the controller's collaborators. Publisher and Notices may
// be nil; the loop then skips those side effects.
type Options struct {
	UserID     string
	Fetcher    Fetcher
	Dispatcher AlertSink
	Publisher  Publisher
	Notices    Notices
	Bands      Bands
	Target     func() alerting.Target
	Interval   time.Duration
	Logger     zerolog.Logger
}

// Controller owns the repeating-fetch lifecycle for one user. Assigning a
// credential starts a loop; assigning a different one cancels the previous
// loop first, so two loops never poll with different tokens concurrently.
type Controller struct {
	opts Options

	mu         sync.Mutex
	credential string
	generation uint64
	cancel     context.CancelFunc
	latest     Result
}

// NewController creates an idle controller. No polling happens until a
// credential is set.
func NewController(opts Options) *Controller {
	c := &Controller{opts: opts}
	c.latest = Result{Status: StatusNoCredential, UpdatedAt: time.Now()}
	return c
}

// SetCredential transitions the loop. Empty credential means Idle. A changed
// credential supersedes the running loop: its context is cancelled and any
// in-flight fetch result is discarded when it lands.
func (c *Controller) SetCredential(credential string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if credential == c.credential {
		return
	}

	c.stopLocked()
	c.credential = credential
	c.generation++

	if credential == "" {
		c.latest = Result{Status: StatusNoCredential, UpdatedAt: time.Now()}
		return
	}

	c.latest = Result{Credential: credential, Status: ResolveStatus(credential, nil), UpdatedAt: time.Now()}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.loop(ctx, c.generation, credential)
}

// Close stops any running loop. The controller may be reused afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.credential = ""
	c.generation++
	c.latest = Result{Status: StatusNoCredential, UpdatedAt: time.Now()}
}

// Latest returns the most recent authoritative result.
func (c *Controller) Latest() Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Polling reports whether a loop is currently running.
func (c *Controller) Polling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

func (c *Controller) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) loop(ctx context.Context, generation uint64, credential string) {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	// First poll fires immediately; the ticker paces the rest.
	c.poll(ctx, generation, credential)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx, generation, credential)
		}
	}
}

func (c *Controller) poll(ctx context.Context, generation uint64, credential string) {
	started := time.Now()
	outcome := c.opts.Fetcher.Fetch(ctx, credential)
	metrics.PollDuration.Observe(time.Since(started).Seconds())
	metrics.PollsTotal.WithLabelValues(outcome.Kind.String()).Inc()

	c.mu.Lock()
	if generation != c.generation {
		// The credential changed while this fetch was in flight. The result
		// is stale: no display update, no alert dispatch.
		c.mu.Unlock()
		metrics.StalePollsDiscarded.Inc()
		return
	}

	notice := c.resolveNotice(ctx, outcome)
	c.latest = Result{
		Credential: credential,
		Outcome:    &outcome,
		Status:     ResolveStatus(credential, &outcome),
		Notice:     notice,
		UpdatedAt:  time.Now(),
	}
	c.mu.Unlock()

	switch outcome.Kind {
	case telemetry.OutcomeSuccess:
		c.publishReading(ctx, outcome.Snapshot)
		c.evaluate(outcome.Snapshot)
	case telemetry.OutcomeInvalidCredential:
		c.opts.Logger.Warn().Str("user_id", c.opts.UserID).Msg("telemetry token rejected")
	case telemetry.OutcomeTransient:
		if notice != "" {
			c.opts.Logger.Warn().Str("user_id", c.opts.UserID).Str("reason", outcome.Reason).Msg("telemetry fetch failed")
		}
	}
}

// resolveNotice applies the one-shot transient notice policy. Called with
// c.mu held.
func (c *Controller) resolveNotice(ctx context.Context, outcome telemetry.Outcome) string {
	if c.opts.Notices == nil {
		if outcome.Kind == telemetry.OutcomeTransient {
			return outcome.Reason
		}
		return ""
	}

	switch outcome.Kind {
	case telemetry.OutcomeTransient:
		show, err := c.opts.Notices.ShouldNotify(ctx, c.opts.UserID, "transient")
		if err != nil {
			c.opts.Logger.Error().Err(err).Msg("notice gate unavailable")
			return ""
		}
		if show {
			return outcome.Reason
		}
		return ""
	case telemetry.OutcomeSuccess, telemetry.OutcomeOffline:
		if err := c.opts.Notices.Clear(ctx, c.opts.UserID, "transient"); err != nil {
			c.opts.Logger.Error().Err(err).Msg("failed to clear notice state")
		}
	}
	return ""
}

func (c *Controller) publishReading(ctx context.Context, snapshot *telemetry.Snapshot) {
	if c.opts.Publisher == nil || snapshot == nil {
		return
	}

	msg := &protocol.ReadingMessage{
		UserID:      c.opts.UserID,
		Online:      snapshot.Online,
		Temperature: snapshot.Temperature,
		Humidity:    snapshot.Humidity,
		FetchedAt:   snapshot.FetchedAt,
		ReceivedAt:  time.Now(),
	}

	data, err := protocol.EncodeReadingMessage(msg)
	if err != nil {
		c.opts.Logger.Error().Err(err).Msg("failed to encode reading")
		return
	}

	if err := c.opts.Publisher.Publish(ctx, c.opts.UserID, data); err != nil {
		c.opts.Logger.Error().Err(err).Msg("failed to publish reading")
	}
}

// evaluate runs the threshold evaluator per channel and hands breaches to
// the dispatcher. Only called for online snapshots.
func (c *Controller) evaluate(snapshot *telemetry.Snapshot) {
	if snapshot == nil || !snapshot.Online {
		return
	}

	target := alerting.Target{UserID: c.opts.UserID}
	if c.opts.Target != nil {
		target = c.opts.Target()
	}

	if snapshot.Temperature != nil {
		level := threshold.Evaluate(*snapshot.Temperature, c.opts.Bands.Temperature)
		if level.Breaching() {
			c.opts.Dispatcher.Dispatch(alerting.Breach{
				Channel: protocol.ChannelTemperature,
				Level:   level,
				Value:   *snapshot.Temperature,
				Band:    c.opts.Bands.Temperature,
			}, snapshot, target)
		}
	}

	if snapshot.Humidity != nil {
		level := threshold.Evaluate(*snapshot.Humidity, c.opts.Bands.Humidity)
		if level.Breaching() {
			c.opts.Dispatcher.Dispatch(alerting.Breach{
				Channel: protocol.ChannelHumidity,
				Level:   level,
				Value:   *snapshot.Humidity,
				Band:    c.opts.Bands.Humidity,
			}, snapshot, target)
		}
	}
}
