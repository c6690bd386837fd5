package types

// InputFormat names the input format the distributed engine uses to read a path.
type InputFormat string

const (
	// FormatUnset defers the choice to the job configuration
	FormatUnset InputFormat = ""

	// FormatText reads each file as newline-delimited text
	FormatText InputFormat = "text"

	// FormatCombineText packs many small text files into each input split
	FormatCombineText InputFormat = "combine_text"

	// FormatParquet reads Parquet files
	FormatParquet InputFormat = "parquet"
)

// Valid reports whether f is a known format or unset.
func (f InputFormat) Valid() bool {
	switch f {
	case FormatUnset, FormatText, FormatCombineText, FormatParquet:
		return true
	default:
		return false
	}
}

// PathSpec describes the input of an ingestion job: a path expression that may
// contain alternation groups plus an optional input format.
type PathSpec struct {
	// Paths is the raw path expression, e.g. "s3://logs/{2024,2025}/*.gz"
	Paths string `json:"paths" yaml:"paths"`

	// InputFormat overrides the format chosen from the job configuration
	InputFormat InputFormat `json:"input_format,omitempty" yaml:"input_format,omitempty"`
}
