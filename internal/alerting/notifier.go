package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/plantpulse/plant-server/internal/protocol"
	"github.com/plantpulse/plant-server/internal/queue"
	"github.com/plantpulse/plant-server/internal/threshold"
)

// Alert is one threshold breach accepted for delivery.
type Alert struct {
	ID        string
	UserID    string
	Channel   protocol.Channel
	Direction protocol.Direction
	Value     float64
	Band      threshold.Band
	Recipient string
	PlantName string
	FiredAt   time.Time
}

// Notifier hands an alert to a delivery channel. Implementations must be
// safe for concurrent use; delivery success is not guaranteed to be observed
// by the caller.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// QueueNotifier publishes alert events to Kafka. The notification service
// consumes them and sends the actual email.
type QueueNotifier struct {
	producer *queue.Producer
}

// NewQueueNotifier creates a notifier backed by the alerts topic.
func NewQueueNotifier(producer *queue.Producer) *QueueNotifier {
	return &QueueNotifier{producer: producer}
}

// Send encodes the alert and publishes it keyed by user so per-user events
// stay ordered.
func (n *QueueNotifier) Send(ctx context.Context, alert Alert) error {
	event := &protocol.AlertEvent{
		ID:        alert.ID,
		UserID:    alert.UserID,
		Channel:   alert.Channel,
		Direction: alert.Direction,
		Value:     alert.Value,
		BandMin:   alert.Band.Min,
		BandMax:   alert.Band.Max,
		Recipient: alert.Recipient,
		PlantName: alert.PlantName,
		FiredAt:   alert.FiredAt,
	}

	data, err := protocol.EncodeAlertEvent(event)
	if err != nil {
		return fmt.Errorf("failed to encode alert event: %w", err)
	}

	return n.producer.Publish(ctx, alert.UserID, data)
}
