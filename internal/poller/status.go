package poller

import (
	"github.com/plantpulse/plant-server/internal/telemetry"
)

// Status is the single user-facing state of a monitored device. It replaces
// scattered per-consumer precedence checks with one ordered resolution.
type Status string

const (
	StatusNoCredential      Status = "no_credential"
	StatusInvalidCredential Status = "invalid_credential"
	StatusError             Status = "error"
	StatusOffline           Status = "offline"
	StatusOnline            Status = "online"
)

// ResolveStatus maps a credential and the latest fetch outcome onto a status.
// Precedence, highest first: no credential, rejected credential, transient
// error, device offline, online.
func ResolveStatus(credential string, outcome *telemetry.Outcome) Status {
	if credential == "" {
		return StatusNoCredential
	}
	if outcome == nil {
		// Polling has started but no result has arrived yet.
		return StatusError
	}

	switch outcome.Kind {
	case telemetry.OutcomeInvalidCredential:
		return StatusInvalidCredential
	case telemetry.OutcomeTransient:
		return StatusError
	case telemetry.OutcomeOffline:
		return StatusOffline
	default:
		return StatusOnline
	}
}
