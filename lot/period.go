package lot

import (
	"fmt"
	"time"

	"inspectpay/inspection"
)

// PeriodFor returns the calendar period of the given type containing ref.
// Weeks start on Monday. Both bounds are dates at midnight UTC and inclusive.
func PeriodFor(pt PeriodType, ref time.Time) (time.Time, time.Time, error) {
	day := inspection.DateOnly(ref)
	switch pt {
	case PeriodDaily:
		return day, day, nil
	case PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 6), nil
	case PeriodMonthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, -1), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriodType, pt)
	}
}
