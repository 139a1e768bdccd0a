package protocol

import (
	"encoding/json"
	"time"
)

// Channel identifies a sensor channel.
type Channel string

const (
	ChannelTemperature Channel = "temperature"
	ChannelHumidity    Channel = "humidity"
)

// Direction identifies which side of the band a reading breached.
type Direction string

const (
	DirectionHigh Direction = "high"
	DirectionLow  Direction = "low"
)

// ReadingMessage carries one successful snapshot through Kafka to the
// dbwriter and aggregator.
type ReadingMessage struct {
	UserID      string    `json:"user_id"`
	Online      bool      `json:"online"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	FetchedAt   time.Time `json:"fetched_at"`
	ReceivedAt  time.Time `json:"received_at"`
}

// AlertEvent is the message format for dispatched alerts. The notification
// service consumes it and renders the matching email template.
type AlertEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Channel   Channel   `json:"channel"`
	Direction Direction `json:"direction"`
	Value     float64   `json:"value"`
	BandMin   float64   `json:"band_min"`
	BandMax   float64   `json:"band_max"`
	Recipient string    `json:"recipient"`
	PlantName string    `json:"plant_name"`
	FiredAt   time.Time `json:"fired_at"`
}

// EncodeReadingMessage encodes a ReadingMessage to JSON.
func EncodeReadingMessage(msg *ReadingMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeReadingMessage decodes JSON to a ReadingMessage.
func DecodeReadingMessage(data []byte) (*ReadingMessage, error) {
	var msg ReadingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EncodeAlertEvent encodes an AlertEvent to JSON.
func EncodeAlertEvent(event *AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

// DecodeAlertEvent decodes JSON to an AlertEvent.
func DecodeAlertEvent(data []byte) (*AlertEvent, error) {
	var event AlertEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
