package config

import (
	"fmt"
	"slices"

	"github.com/arkilian/shardplan/internal/errors"
	"github.com/arkilian/shardplan/internal/job"
	"github.com/arkilian/shardplan/pkg/types"
)

// Estimator builds the sub-job that derives shard counts from the input data
// and commits the resulting plan through SetShardSpecs.
type Estimator interface {
	AsJob(cfg *Config) job.Job
}

// EstimatorFunc adapts a function to the Estimator interface.
type EstimatorFunc func(cfg *Config) job.Job

func (f EstimatorFunc) AsJob(cfg *Config) job.Job {
	return f(cfg)
}

// SetEstimator installs the estimator used when determining partitions.
func (c *Config) SetEstimator(e Estimator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.estimator = e
}

// Paths returns the working and output prefixes.
func (c *Config) Paths() job.Paths {
	return job.Paths{Working: c.WorkingPath, Output: c.OutputPath}
}

// IsDeterminingPartitions reports whether shard counts come from the input data.
func (c *Config) IsDeterminingPartitions() bool {
	return c.Partitions.DeterminePartitions
}

// PartitionJob returns the estimator sub-job.
func (c *Config) PartitionJob() (job.Job, error) {
	c.mu.Lock()
	e := c.estimator
	c.mu.Unlock()
	if e == nil {
		return nil, errors.NewConfigurationError(errors.CodeNoEstimator,
			"determine_partitions is set but no partition estimator is available")
	}
	return e.AsJob(c), nil
}

// NumShards returns the fixed number of shards per bucket. A partition type
// of none always yields one shard per bucket.
func (c *Config) NumShards() int {
	if c.Partitions.Type == PartitionNone {
		return 0
	}
	return c.Partitions.NumShards
}

// PartitionDimensions returns the dimensions hashed for routing.
func (c *Config) PartitionDimensions() []string {
	return slices.Clone(c.Partitions.PartitionDimensions)
}

// IsCombineText reports whether small text inputs are combined.
func (c *Config) IsCombineText() bool {
	return c.CombineText
}

// SegmentGranularIntervals expands the configured intervals into buckets of
// the segment granularity, sorted by start. Overlapping intervals yield each
// bucket once. No intervals yields nil.
func (c *Config) SegmentGranularIntervals() ([]types.TimeBucket, error) {
	if len(c.Granularity.Intervals) == 0 {
		return nil, nil
	}

	g, err := ParseGranularity(c.Granularity.Segment)
	if err != nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, err.Error())
	}

	seen := make(map[int64]struct{})
	buckets := []types.TimeBucket{}
	for _, interval := range c.Granularity.Intervals {
		start, end, err := ParseInterval(interval)
		if err != nil {
			return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, err.Error())
		}
		for _, b := range g.Buckets(start, end) {
			key := b.Start.UnixNano()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			buckets = append(buckets, b)
		}
	}

	slices.SortFunc(buckets, func(a, b types.TimeBucket) int {
		return a.Start.Compare(b.Start)
	})
	return buckets, nil
}

// SetShardSpecs commits the shard plan. Only the first commit is accepted.
func (c *Config) SetShardSpecs(plan *types.ShardPlan) error {
	if plan == nil {
		return errors.NewConfigurationError(errors.CodeInvalidShards, "shard plan is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shardSpecs != nil {
		return errors.NewConfigurationError(errors.CodeAlreadyCommitted,
			fmt.Sprintf("shard plan already committed with %d buckets", c.shardSpecs.Len()))
	}
	c.shardSpecs = plan
	return nil
}

// ShardSpecs returns the committed plan, or nil before the commit.
func (c *Config) ShardSpecs() *types.ShardPlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shardSpecs
}
