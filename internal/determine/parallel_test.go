package determine

import (
	"context"
	"testing"

	"github.com/arkilian/shardplan/internal/partition"
	"github.com/arkilian/shardplan/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestAssignParallel_MatchesSequential(t *testing.T) {
	buckets := dailyBuckets(jan1, 50)
	for _, workers := range []int{0, 1, 4, 64} {
		got, err := AssignParallel(context.Background(), 3, buckets, workers)
		if err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", workers, err)
		}
		want, _ := Assign(3, buckets)
		if !want.Equal(got) {
			t.Errorf("workers=%d: parallel plan differs from sequential plan", workers)
		}
	}
}

func TestAssignParallel_Errors(t *testing.T) {
	if _, err := AssignParallel(context.Background(), 1, nil, 4); err == nil {
		t.Error("expected error for absent buckets")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := AssignParallel(ctx, 1, dailyBuckets(jan1, 3), 2); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestBucketOffsets(t *testing.T) {
	got := bucketOffsets(4, 3)
	want := []int{0, 3, 6, 9}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("offset[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	single := bucketOffsets(3, -5)
	for i, off := range single {
		if off != i {
			t.Errorf("single offset[%d] = %d", i, off)
		}
	}
}

func TestProperty_AssignInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("parallel assignment equals sequential assignment", prop.ForAll(
		func(n, numBuckets, workers int) bool {
			buckets := dailyBuckets(jan1, numBuckets)
			seq, err := Assign(n, buckets)
			if err != nil {
				return false
			}
			par, err := AssignParallel(context.Background(), n, buckets, workers)
			if err != nil {
				return false
			}
			return seq.Equal(par)
		},
		gen.IntRange(-3, 8),
		gen.IntRange(0, 40),
		gen.IntRange(1, 8),
	))

	properties.Property("shard numbers are 0..total-1 in plan order", prop.ForAll(
		func(n, numBuckets int) bool {
			plan, err := Assign(n, dailyBuckets(jan1, numBuckets))
			if err != nil {
				return false
			}
			next := 0
			for _, nums := range shardNums(plan) {
				for _, num := range nums {
					if num != next {
						return false
					}
					next++
				}
			}
			return next == plan.TotalShards() && next == numBuckets*shardsInBucket(n)
		},
		gen.IntRange(-3, 8),
		gen.IntRange(0, 40),
	))

	properties.Property("every bucket has one spec kind and a routable layout", prop.ForAll(
		func(n, numBuckets int) bool {
			plan, err := Assign(n, dailyBuckets(jan1, numBuckets))
			if err != nil {
				return false
			}
			if numBuckets > 0 && plan.Len() != numBuckets {
				return false
			}
			return partition.NewPlanValidatorForShards(n).Validate(plan) == nil
		},
		gen.IntRange(-3, 8),
		gen.IntRange(0, 40),
	))

	properties.Property("plan keys equal the configured bucket starts", prop.ForAll(
		func(numBuckets int) bool {
			buckets := dailyBuckets(jan1, numBuckets)
			plan, err := Assign(2, buckets)
			if err != nil {
				return false
			}
			keys := plan.Buckets()
			if len(keys) != len(buckets) {
				return false
			}
			for i := range keys {
				if !keys[i].Equal(buckets[i].Start) {
					return false
				}
			}
			_, ok := plan.Get(types.NewTimeBucket(jan1.AddDate(0, 0, -1), jan1).Start)
			return !ok
		},
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}
