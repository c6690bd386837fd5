package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/arkilian/shardplan/pkg/types"
)

// Granularity is the width of one time bucket.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// ParseGranularity parses a granularity name, case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	switch g {
	case GranularityHour, GranularityDay, GranularityWeek, GranularityMonth, GranularityYear:
		return g, nil
	default:
		return "", fmt.Errorf("unknown segment granularity %q (must be hour, day, week, month, or year)", s)
	}
}

// Truncate returns the start of the bucket containing t, in UTC.
// Weeks start on Monday.
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GranularityHour:
		return t.Truncate(time.Hour)
	case GranularityWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case GranularityYear:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// Next returns the start of the bucket after the one starting at start.
func (g Granularity) Next(start time.Time) time.Time {
	switch g {
	case GranularityHour:
		return start.Add(time.Hour)
	case GranularityWeek:
		return start.AddDate(0, 0, 7)
	case GranularityMonth:
		return start.AddDate(0, 1, 0)
	case GranularityYear:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// Buckets returns every bucket overlapping [start, end) in order.
func (g Granularity) Buckets(start, end time.Time) []types.TimeBucket {
	var out []types.TimeBucket
	for b := g.Truncate(start); b.Before(end); b = g.Next(b) {
		out = append(out, types.NewTimeBucket(b, g.Next(b)))
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
}

func parseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// ParseInterval parses an ISO-8601 style "start/end" interval.
// The end must be after the start.
func ParseInterval(s string) (start, end time.Time, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid interval %q: expected start/end", s)
	}
	if start, err = parseInstant(parts[0]); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	if end, err = parseInstant(parts[1]); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid interval %q: end is not after start", s)
	}
	return start, end, nil
}
