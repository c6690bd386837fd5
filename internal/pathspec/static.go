// Package pathspec registers the input paths of an ingestion job on its
// job descriptor.
package pathspec

import (
	"fmt"

	"github.com/arkilian/shardplan/internal/errors"
	"github.com/arkilian/shardplan/internal/glob"
	"github.com/arkilian/shardplan/internal/job"
	"github.com/arkilian/shardplan/internal/metrics"
	"github.com/arkilian/shardplan/pkg/types"
	"go.uber.org/zap"
)

// FormatConfig is the part of the job configuration that picks the default
// input format.
type FormatConfig interface {
	// IsCombineText reports whether small input files should be combined
	// into larger splits.
	IsCombineText() bool
}

// StaticPathSpec is a fixed set of input paths, given as one expression that
// may contain alternation groups and comma path sets.
type StaticPathSpec struct {
	spec    types.PathSpec
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a StaticPathSpec.
type Option func(*StaticPathSpec)

// WithLogger sets the logger used to report registered paths.
func WithLogger(log *zap.Logger) Option {
	return func(s *StaticPathSpec) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics counts registered paths on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *StaticPathSpec) {
		s.metrics = m
	}
}

// NewStaticPathSpec creates a path spec for paths read with format. An unset
// format is resolved from the job configuration at registration time.
func NewStaticPathSpec(paths string, format types.InputFormat, opts ...Option) *StaticPathSpec {
	s := &StaticPathSpec{
		spec: types.PathSpec{Paths: paths, InputFormat: format},
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Paths returns the raw path expression.
func (s *StaticPathSpec) Paths() string {
	return s.spec.Paths
}

// InputFormat returns the configured format, possibly unset.
func (s *StaticPathSpec) InputFormat() types.InputFormat {
	return s.spec.InputFormat
}

// Spec returns the underlying value.
func (s *StaticPathSpec) Spec() types.PathSpec {
	return s.spec
}

// Equal reports whether both specs have the same paths and format.
func (s *StaticPathSpec) Equal(other *StaticPathSpec) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.spec == other.spec
}

func (s *StaticPathSpec) String() string {
	return fmt.Sprintf("StaticPathSpec{paths=%s, inputFormat=%s}", s.spec.Paths, s.spec.InputFormat)
}

// AddInputPaths registers every path of the spec on reg. An empty path
// expression registers nothing.
func (s *StaticPathSpec) AddInputPaths(cfg FormatConfig, reg job.InputRegistrar) error {
	if s.spec.Paths == "" {
		return nil
	}
	s.log.Info("Adding input paths", zap.String("paths", s.spec.Paths))

	format := ResolveFormat(cfg, s.spec.InputFormat)
	n, err := addToMultipleInputs(reg, s.spec.Paths, format)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		s.metrics.IncInputPaths(string(format))
	}
	s.log.Debug("Registered input paths", zap.Int("count", n), zap.String("format", string(format)))
	return nil
}

// ResolveFormat returns format when set, otherwise combine_text if cfg asks
// for combined input and text if not.
func ResolveFormat(cfg FormatConfig, format types.InputFormat) types.InputFormat {
	if format != types.FormatUnset {
		return format
	}
	if cfg != nil && cfg.IsCombineText() {
		return types.FormatCombineText
	}
	return types.FormatText
}

// AddToMultipleInputs expands path and registers each literal glob on reg
// with format. Multi-input registration accepts a single glob per call, so a
// grouped expression is never passed through as one path.
func AddToMultipleInputs(reg job.InputRegistrar, path string, format types.InputFormat) error {
	_, err := addToMultipleInputs(reg, path, format)
	return err
}

func addToMultipleInputs(reg job.InputRegistrar, path string, format types.InputFormat) (int, error) {
	paths, err := glob.Split(path)
	if err != nil {
		return 0, errors.NewPathError(errors.CodeMalformedPath,
			fmt.Sprintf("cannot expand input path %q", path), err)
	}
	for _, p := range paths {
		if err := reg.AddInputPath(p, format); err != nil {
			return 0, errors.NewPathError(errors.CodeRegistrationFailed,
				fmt.Sprintf("cannot register input path %q", p), err)
		}
	}
	return len(paths), nil
}
