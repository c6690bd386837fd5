// Package determine decides the shard layout of an ingestion job: how many
// shards each time bucket is split into, which routing rule each shard
// carries, and the job-wide number of every shard.
package determine

import (
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"github.com/arkilian/shardplan/internal/errors"
	"github.com/arkilian/shardplan/pkg/types"
)

// ErrNoBuckets is the cause of the configuration error returned when the
// bucket set is absent. An empty, non-nil bucket set is valid.
var ErrNoBuckets = stderrors.New("determine: time buckets are not configured")

// AssignOption configures Assign and AssignParallel.
type AssignOption func(*assignOptions)

type assignOptions struct {
	dimensions []string
}

// WithPartitionDimensions sets the dimensions hashed by the hashed specs.
// Without it every row dimension is hashed.
func WithPartitionDimensions(dims []string) AssignOption {
	return func(o *assignOptions) {
		o.dimensions = slices.Clone(dims)
	}
}

func applyAssignOptions(opts []AssignOption) assignOptions {
	var o assignOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Assign builds the shard plan for buckets. With shardsPerInterval > 0 every
// bucket gets that many hashed specs; otherwise every bucket gets exactly one
// single spec. Shard numbers start at 0 and increase without gaps, first by
// bucket start and then by position within the bucket.
//
// Buckets may be given in any order. A nil bucket set or two buckets with the
// same start are configuration errors.
func Assign(shardsPerInterval int, buckets []types.TimeBucket, opts ...AssignOption) (*types.ShardPlan, error) {
	o := applyAssignOptions(opts)

	sorted, err := sortBuckets(buckets)
	if err != nil {
		return nil, err
	}

	builder := types.NewShardPlanBuilder()
	shardCount := 0
	for _, bucket := range sorted {
		specs := bucketSpecs(shardsPerInterval, shardCount, o.dimensions)
		shardCount += len(specs)
		if err := builder.Add(bucket.Start, specs); err != nil {
			return nil, errors.NewInternalError("failed to add bucket to plan", err)
		}
	}
	return builder.Build(), nil
}

// shardsInBucket returns the number of specs a bucket receives.
func shardsInBucket(shardsPerInterval int) int {
	if shardsPerInterval > 0 {
		return shardsPerInterval
	}
	return 1
}

// bucketSpecs creates the specs of one bucket, numbered from offset.
func bucketSpecs(shardsPerInterval, offset int, dims []string) []types.JobShardSpec {
	if shardsPerInterval <= 0 {
		return []types.JobShardSpec{types.NewJobShardSpec(types.SingleShardSpec{}, offset)}
	}
	specs := make([]types.JobShardSpec, shardsPerInterval)
	for i := range specs {
		specs[i] = types.NewJobShardSpec(
			types.NewHashedShardSpec(i, shardsPerInterval, dims),
			offset+i,
		)
	}
	return specs
}

// sortBuckets returns a chronologically sorted copy of buckets and rejects
// absent sets, inverted intervals and duplicate starts.
func sortBuckets(buckets []types.TimeBucket) ([]types.TimeBucket, error) {
	if buckets == nil {
		return nil, errors.Wrap(errors.ErrCategoryConfiguration, errors.CodeInvalidBuckets,
			"cannot assign shard specs", ErrNoBuckets)
	}

	sorted := slices.Clone(buckets)
	slices.SortStableFunc(sorted, func(a, b types.TimeBucket) int {
		return a.Start.Compare(b.Start)
	})

	for i, b := range sorted {
		if !b.End.After(b.Start) {
			return nil, errors.Wrap(errors.ErrCategoryConfiguration, errors.CodeInvalidBuckets,
				"cannot assign shard specs", fmt.Errorf("bucket %s does not end after it starts", b))
		}
		if i > 0 && sorted[i-1].Start.Equal(b.Start) {
			return nil, errors.Wrap(errors.ErrCategoryConfiguration, errors.CodeInvalidBuckets,
				"cannot assign shard specs",
				fmt.Errorf("duplicate bucket start %s", b.Start.UTC().Format(time.RFC3339)))
		}
	}
	return sorted, nil
}
