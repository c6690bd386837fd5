package types

// InputRow is a parsed input row as seen by shard routing.
type InputRow struct {
	// Timestamp is the row time in Unix milliseconds, truncated to query granularity
	Timestamp int64 `json:"timestamp"`

	// Dimensions maps dimension names to their values
	Dimensions map[string][]string `json:"dimensions"`
}
