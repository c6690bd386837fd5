package determine

import (
	"context"

	"github.com/arkilian/shardplan/internal/errors"
	"github.com/arkilian/shardplan/pkg/types"
	"golang.org/x/sync/errgroup"
)

// AssignParallel builds the same plan as Assign, creating the specs of
// different buckets on up to workers goroutines. Each bucket's first shard
// number is the sum of the shard counts of all earlier buckets, computed
// before any worker starts.
func AssignParallel(ctx context.Context, shardsPerInterval int, buckets []types.TimeBucket, workers int, opts ...AssignOption) (*types.ShardPlan, error) {
	o := applyAssignOptions(opts)

	sorted, err := sortBuckets(buckets)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	offsets := bucketOffsets(len(sorted), shardsPerInterval)
	results := make([][]types.JobShardSpec, len(sorted))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range sorted {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = bucketSpecs(shardsPerInterval, offsets[i], o.dimensions)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	builder := types.NewShardPlanBuilder()
	for i, bucket := range sorted {
		if err := builder.Add(bucket.Start, results[i]); err != nil {
			return nil, errors.NewInternalError("failed to add bucket to plan", err)
		}
	}
	return builder.Build(), nil
}

// bucketOffsets returns the prefix sums of the per-bucket shard counts.
func bucketOffsets(n, shardsPerInterval int) []int {
	offsets := make([]int, n)
	next := 0
	for i := range offsets {
		offsets[i] = next
		next += shardsInBucket(shardsPerInterval)
	}
	return offsets
}
