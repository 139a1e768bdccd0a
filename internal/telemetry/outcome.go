package telemetry

import "time"

// OutcomeKind tags the result of one poll cycle. Exactly one kind is
// produced per Fetch call.
type OutcomeKind int

const (
	// OutcomeSuccess means the device is online and the snapshot holds live readings.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeOffline means the reads succeeded but the device reports itself
	// offline. The snapshot may still carry last-known values for display;
	// they must never be evaluated against thresholds.
	OutcomeOffline
	// OutcomeInvalidCredential means the telemetry cloud rejected the token.
	OutcomeInvalidCredential
	// OutcomeTransient means a network or parse failure unrelated to the
	// token. Sensor values are unknown, not zero and not previous.
	OutcomeTransient
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeOffline:
		return "offline"
	case OutcomeInvalidCredential:
		return "invalid_credential"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Snapshot is one complete, internally consistent set of sensor readings.
// It is produced fresh on every successful poll and superseded, never
// merged, by the next one.
type Snapshot struct {
	Online      bool      `json:"online"`
	Temperature *float64  `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Outcome is the tagged result every consumer branches on.
type Outcome struct {
	Kind     OutcomeKind
	Snapshot *Snapshot // populated for Success and Offline
	Reason   string    // populated for Transient
}
