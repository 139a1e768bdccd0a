package profile

import (
	"fmt"
	"time"
)

// PlantingDateFormat is the fixed wire format for planting dates.
const PlantingDateFormat = "02/01/2006"

// Profile holds the per-user dashboard state.
type Profile struct {
	UserID             string
	PlantName          string
	PlantingDate       *time.Time
	Credentials        []string
	SelectedCredential int
	AlertEmail         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ActiveCredential returns the selected device token, or "" when none is
// selected.
func (p *Profile) ActiveCredential() string {
	if p == nil || len(p.Credentials) == 0 {
		return ""
	}
	if p.SelectedCredential < 0 || p.SelectedCredential >= len(p.Credentials) {
		return ""
	}
	return p.Credentials[p.SelectedCredential]
}

// Patch is a merge-style partial update. Nil fields leave the stored value
// untouched.
type Patch struct {
	PlantName    *string
	PlantingDate *time.Time
	AlertEmail   *string
}

// DaysSincePlanting derives the whole days elapsed since the planting date.
// Always recomputed from the stored date, never trusted from storage, and
// clamped at zero for future dates.
func DaysSincePlanting(plantingDate, today time.Time) int {
	p := atMidnightUTC(plantingDate)
	d := atMidnightUTC(today)

	days := int(d.Sub(p).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ParsePlantingDate parses the DD/MM/YYYY wire format.
func ParsePlantingDate(value string) (time.Time, error) {
	t, err := time.Parse(PlantingDateFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid planting date %q (want DD/MM/YYYY): %w", value, err)
	}
	return t, nil
}

// FormatPlantingDate renders a date in the DD/MM/YYYY wire format.
func FormatPlantingDate(t time.Time) string {
	return t.Format(PlantingDateFormat)
}

func atMidnightUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
