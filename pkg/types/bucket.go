package types

import (
	"fmt"
	"time"
)

// TimeBucket is one segment-granularity bucket of the ingestion range.
// The interval is half-open: [Start, End).
type TimeBucket struct {
	// Start is the inclusive lower bound and the bucket's identity
	Start time.Time `json:"start"`

	// End is the exclusive upper bound
	End time.Time `json:"end"`
}

// NewTimeBucket creates a bucket covering [start, end).
func NewTimeBucket(start, end time.Time) TimeBucket {
	return TimeBucket{Start: start.UTC(), End: end.UTC()}
}

// Contains reports whether t falls inside the bucket.
func (b TimeBucket) Contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

// Duration returns the length of the bucket.
func (b TimeBucket) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// String renders the bucket as an ISO-8601 interval.
func (b TimeBucket) String() string {
	return fmt.Sprintf("%s/%s", b.Start.UTC().Format(time.RFC3339), b.End.UTC().Format(time.RFC3339))
}
