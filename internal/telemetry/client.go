package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/plantpulse/plant-server/pkg/config"
)

// Pin names for the two sensor channels exposed by the telemetry cloud.
const (
	PinTemperature = "V0"
	PinHumidity    = "V1"
)

// ErrInvalidToken indicates the cloud rejected the device token.
var ErrInvalidToken = errors.New("telemetry: invalid token")

// Client reads device state from the telemetry cloud. It is a pure query
// client, safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a telemetry client against the configured cloud.
func NewClient(cfg config.TelemetryConfig, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}
}

// Fetch performs one logical poll: the device-online check plus both channel
// reads. It always classifies the result into exactly one Outcome kind and
// never returns an error; failures are part of the outcome contract.
func (c *Client) Fetch(ctx context.Context, token string) Outcome {
	online, err := c.readOnline(ctx, token)
	if err != nil {
		return classifyError(err)
	}

	temperature, err := c.readPin(ctx, token, PinTemperature)
	if err != nil {
		return classifyError(err)
	}

	humidity, err := c.readPin(ctx, token, PinHumidity)
	if err != nil {
		return classifyError(err)
	}

	snapshot := &Snapshot{
		Online:      online,
		Temperature: &temperature,
		Humidity:    &humidity,
		FetchedAt:   time.Now(),
	}

	if !online {
		return Outcome{Kind: OutcomeOffline, Snapshot: snapshot}
	}
	return Outcome{Kind: OutcomeSuccess, Snapshot: snapshot}
}

func classifyError(err error) Outcome {
	if errors.Is(err, ErrInvalidToken) {
		return Outcome{Kind: OutcomeInvalidCredential}
	}
	return Outcome{Kind: OutcomeTransient, Reason: err.Error()}
}

func (c *Client) readOnline(ctx context.Context, token string) (bool, error) {
	body, err := c.get(ctx, "isHardwareConnected", token, "")
	if err != nil {
		return false, err
	}

	switch strings.TrimSpace(body) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("unexpected online flag %q", body)
	}
}

func (c *Client) readPin(ctx context.Context, token, pin string) (float64, error) {
	body, err := c.get(ctx, "get", token, pin)
	if err != nil {
		return 0, err
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(body), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed reading for %s: %q", pin, body)
	}
	return value, nil
}

// get issues one read against the cloud. The query-string shape
// (?token=T&V0) is the wire contract and must not change.
func (c *Client) get(ctx context.Context, endpoint, token, pin string) (string, error) {
	reqURL := fmt.Sprintf("%s/%s?token=%s", c.baseURL, endpoint, url.QueryEscape(token))
	if pin != "" {
		reqURL += "&" + pin
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		// Some deployments report bad tokens as 400 with a text body.
		if strings.Contains(strings.ToLower(string(data)), "invalid token") {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	return string(data), nil
}
