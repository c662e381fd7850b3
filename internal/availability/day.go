package availability

import (
	"fmt"
	"time"
)

// dateLayout is the civil-date form used for ProviderDay keys.
const dateLayout = "2006-01-02"

// ProviderDay is the conflict-checking unit: one provider's operating
// calendar for one civil day in the business's timezone.
type ProviderDay struct {
	ProviderID string
	Date       string
	Zone       *time.Location
}

// Key returns the serialization key for the day's lock and window cache.
func (d ProviderDay) Key() string {
	return d.ProviderID + "|" + d.Date
}

// providerDayOf maps an instant to the provider's civil day in zone.
func providerDayOf(providerID string, at time.Time, zone *time.Location) ProviderDay {
	return ProviderDay{
		ProviderID: providerID,
		Date:       at.In(zone).Format(dateLayout),
		Zone:       zone,
	}
}

// parseDate validates a civil date string.
func parseDate(date string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("availability: invalid date %q: %w", date, err)
	}
	return nil
}

// Bounds returns the instant range of the day's operating hours in the
// business timezone. Using time.Date with the zone keeps the computation
// correct across DST transitions, where a civil day is not 24 hours.
func (d ProviderDay) Bounds(startHour, endHour int) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, d.Date, d.Zone)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("availability: invalid date %q: %w", d.Date, err)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), startHour, 0, 0, 0, d.Zone)
	var end time.Time
	if endHour >= 24 {
		end = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, d.Zone).AddDate(0, 0, 1)
	} else {
		end = time.Date(day.Year(), day.Month(), day.Day(), endHour, 0, 0, 0, d.Zone)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("availability: empty operating day %d-%d", startHour, endHour)
	}
	return start, end, nil
}
