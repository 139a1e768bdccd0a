package threshold

import "fmt"

// Level is the result of evaluating a reading against its band.
type Level int

const (
	TooLow Level = iota
	Normal
	TooHigh
)

func (l Level) String() string {
	switch l {
	case TooLow:
		return "too_low"
	case Normal:
		return "normal"
	case TooHigh:
		return "too_high"
	default:
		return "unknown"
	}
}

// Breaching reports whether the level is outside the band.
func (l Level) Breaching() bool {
	return l == TooLow || l == TooHigh
}

// Band is the configured normal [Min, Max] range for one sensor channel.
// Both bounds are inclusive.
type Band struct {
	Min float64
	Max float64
}

// Validate rejects inverted bands.
func (b Band) Validate() error {
	if b.Min >= b.Max {
		return fmt.Errorf("band invalid: min %.2f must be below max %.2f", b.Min, b.Max)
	}
	return nil
}

// Evaluate maps a reading onto the band. Boundary values are Normal.
func Evaluate(value float64, band Band) Level {
	switch {
	case value < band.Min:
		return TooLow
	case value > band.Max:
		return TooHigh
	default:
		return Normal
	}
}
