package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Day   Period = "day"
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
)

// Period is the coarse selector used by reporting operations.
type Period string

// ValidPeriod reports whether p is a supported period selector.
func ValidPeriod(p Period) bool {
	switch p {
	case Day, Week, Month, Year:
		return true
	}
	return false
}

// ResolvePeriod converts a period selector plus a reference string into a
// half-open interval [start, end) at naive midnight and a canonical label.
//
// Reference formats: day YYYY-MM-DD, week YYYY-Www (ISO-8601, Monday first),
// month YYYY-MM, year YYYY. Malformed or empty references fail with
// ErrInvalidPeriod carrying the reason. No bound is placed on how far in the
// past or future the reference lies.
func ResolvePeriod(period Period, reference string) (start, end time.Time, label string, err error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return time.Time{}, time.Time{}, "", fmt.Errorf("%w: empty reference", ErrInvalidPeriod)
	}

	switch period {
	case Day:
		day, perr := time.Parse("2006-01-02", ref)
		if perr != nil {
			return time.Time{}, time.Time{}, "", fmt.Errorf("%w: want YYYY-MM-DD, got %q", ErrInvalidPeriod, ref)
		}
		start = day
		end = start.AddDate(0, 0, 1)
		label = start.Format("2006-01-02")

	case Week:
		year, week, perr := parseISOWeekRef(ref)
		if perr != nil {
			return time.Time{}, time.Time{}, "", perr
		}
		start = firstDayOfISOWeek(year, week)
		end = start.AddDate(0, 0, 7)
		label = fmt.Sprintf("%04d-W%02d", year, week)

	case Month:
		first, perr := time.Parse("2006-01", ref)
		if perr != nil {
			return time.Time{}, time.Time{}, "", fmt.Errorf("%w: want YYYY-MM, got %q", ErrInvalidPeriod, ref)
		}
		start = first
		end = nextMonth(start)
		label = start.Format("2006-01")

	case Year:
		year, perr := strconv.Atoi(ref)
		if perr != nil || year < 0 {
			return time.Time{}, time.Time{}, "", fmt.Errorf("%w: want YYYY, got %q", ErrInvalidPeriod, ref)
		}
		start = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		end = time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
		label = fmt.Sprintf("%04d", year)

	default:
		return time.Time{}, time.Time{}, "", fmt.Errorf("%w: unsupported period %q", ErrInvalidPeriod, period)
	}

	return start, end, label, nil
}

// nextMonth returns midnight on the first day of the month after t's month.
// Jumping to day 28 and adding 4 days always lands in the next month
// regardless of month length or leap years.
func nextMonth(t time.Time) time.Time {
	base := time.Date(t.Year(), t.Month(), 28, 0, 0, 0, 0, time.UTC)
	landed := base.AddDate(0, 0, 4)
	return time.Date(landed.Year(), landed.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func parseISOWeekRef(ref string) (year, week int, err error) {
	yearPart, weekPart, found := strings.Cut(ref, "-W")
	if !found {
		return 0, 0, fmt.Errorf("%w: want YYYY-Www (e.g. 2024-W09), got %q", ErrInvalidPeriod, ref)
	}
	year, yerr := strconv.Atoi(yearPart)
	week, werr := strconv.Atoi(weekPart)
	if yerr != nil || werr != nil || year < 0 {
		return 0, 0, fmt.Errorf("%w: want YYYY-Www (e.g. 2024-W09), got %q", ErrInvalidPeriod, ref)
	}
	if week < 1 || week > isoWeeksInYear(year) {
		return 0, 0, fmt.Errorf("%w: year %d has no week %d", ErrInvalidPeriod, year, week)
	}
	return year, week, nil
}

// firstDayOfISOWeek returns the Monday that starts the given ISO week.
// January 4 always falls in week 1 per ISO-8601.
func firstDayOfISOWeek(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 { // Sunday
		weekday = 7
	}
	week1Monday := jan4.AddDate(0, 0, 1-weekday)
	return week1Monday.AddDate(0, 0, (week-1)*7)
}

// isoWeeksInYear returns 52 or 53. December 28 is always in the last ISO
// week of its year.
func isoWeeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}
