package core

import (
	"fmt"
	"time"
)

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

type (
	// Granularity is the bucket width of a timeline report.
	Granularity string

	// Bucket is a derived time slice of a resolved period. Never persisted.
	Bucket struct {
		Label        string
		DisplayLabel string
		Start        time.Time
		End          time.Time
		Total        Money
	}

	// BillPoint is the minimal projection of a bill used for bucketing.
	BillPoint struct {
		At     time.Time
		Amount Money
	}
)

// granularityOrder: a granularity is compatible with a period when it is
// strictly finer than or equal in fineness, and the period itself is
// divisible. Day periods expose no timeline at all.
var compatibleGranularities = map[Period]map[Granularity]bool{
	Year:  {GranularityMonth: true, GranularityWeek: true, GranularityDay: true},
	Month: {GranularityWeek: true, GranularityDay: true},
	Week:  {GranularityDay: true},
}

// ValidateGranularity ensures granularity is usable for splitting period.
func ValidateGranularity(period Period, granularity Granularity) error {
	allowed, ok := compatibleGranularities[period]
	if !ok {
		return fmt.Errorf("%w: period %q cannot be split", ErrIncompatibleGranularity, period)
	}
	if !allowed[granularity] {
		return fmt.Errorf("%w: %q does not divide a %s", ErrIncompatibleGranularity, granularity, period)
	}
	return nil
}

// Bucketize partitions [start, end) into a gapless ordered bucket sequence.
//
// The first bucket starts at the granularity floor of start, so it may begin
// before start; the last bucket's end is clamped to end, so it may be shorter
// than a full step. Adjacent buckets always satisfy
// buckets[i].End == buckets[i+1].Start. A start at or past end yields no
// buckets.
func Bucketize(start, end time.Time, granularity Granularity) ([]Bucket, error) {
	switch granularity {
	case GranularityDay, GranularityWeek, GranularityMonth:
	default:
		return nil, fmt.Errorf("%w: unknown granularity %q", ErrIncompatibleGranularity, granularity)
	}

	if !start.Before(end) {
		return []Bucket{}, nil
	}

	var buckets []Bucket
	cursor := floorToGranularity(start, granularity)
	for cursor.Before(end) {
		next := stepGranularity(cursor, granularity)
		bucketEnd := next
		if bucketEnd.After(end) {
			bucketEnd = end
		}
		buckets = append(buckets, Bucket{
			Label:        bucketLabel(cursor, granularity),
			DisplayLabel: bucketDisplayLabel(cursor, granularity),
			Start:        cursor,
			End:          bucketEnd,
		})
		cursor = next
	}
	return buckets, nil
}

// AssignToBuckets accumulates each point's amount into the bucket whose start
// equals the granularity floor of the point's timestamp. Timezone offsets are
// dropped before flooring. The returned count is the number of points that
// matched no bucket; by construction it should be zero for points inside
// [start, end) and callers treat a nonzero value as an invariant violation.
func AssignToBuckets(buckets []Bucket, granularity Granularity, points []BillPoint) (unmatched int) {
	index := make(map[time.Time]int, len(buckets))
	for i, b := range buckets {
		index[b.Start] = i
	}
	for _, p := range points {
		floor := floorToGranularity(NaiveWallClock(p.At), granularity)
		i, ok := index[floor]
		if !ok {
			unmatched++
			continue
		}
		buckets[i].Total = buckets[i].Total.Add(p.Amount)
	}
	return unmatched
}

// TotalOfBuckets sums the accumulated amounts over all buckets.
func TotalOfBuckets(buckets []Bucket) Money {
	var total Money
	for _, b := range buckets {
		total = total.Add(b.Total)
	}
	return total
}

func floorToGranularity(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityWeek:
		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		weekday := int(midnight.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		return midnight.AddDate(0, 0, 1-weekday)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // day
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func stepGranularity(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityWeek:
		return t.AddDate(0, 0, 7)
	case GranularityMonth:
		return nextMonth(t)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func bucketLabel(start time.Time, g Granularity) string {
	switch g {
	case GranularityWeek:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case GranularityMonth:
		return start.Format("2006-01")
	default:
		return start.Format("2006-01-02")
	}
}

func bucketDisplayLabel(start time.Time, g Granularity) string {
	switch g {
	case GranularityWeek:
		_, week := start.ISOWeek()
		return fmt.Sprintf("W%02d", week)
	case GranularityMonth:
		return start.Format("Jan 2006")
	default:
		return start.Format("Jan 2")
	}
}
