package types

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/btree"
)

// planDegree is the B-tree degree used for shard plans.
const planDegree = 8

// bucketShards is one entry of a shard plan.
type bucketShards struct {
	start time.Time
	specs []JobShardSpec
}

func lessBucketShards(a, b bucketShards) bool {
	return a.start.Before(b.start)
}

// ShardPlan maps each time-bucket start to the ordered shard specs of that
// bucket. Iteration is chronological. A plan is immutable once built; use
// ShardPlanBuilder to construct one.
type ShardPlan struct {
	tree   *btree.BTreeG[bucketShards]
	shards int
}

// EmptyShardPlan returns a plan with no buckets.
func EmptyShardPlan() *ShardPlan {
	return NewShardPlanBuilder().Build()
}

// Len returns the number of buckets in the plan.
func (p *ShardPlan) Len() int {
	if p == nil {
		return 0
	}
	return p.tree.Len()
}

// TotalShards returns the number of shards across all buckets.
func (p *ShardPlan) TotalShards() int {
	if p == nil {
		return 0
	}
	return p.shards
}

// Get returns a copy of the shard specs of the bucket starting at start.
func (p *ShardPlan) Get(start time.Time) ([]JobShardSpec, bool) {
	if p == nil {
		return nil, false
	}
	entry, ok := p.tree.Get(bucketShards{start: start})
	if !ok {
		return nil, false
	}
	return slices.Clone(entry.specs), true
}

// Lookup returns the shard at partitionNum within the bucket starting at start.
func (p *ShardPlan) Lookup(start time.Time, partitionNum int) (JobShardSpec, bool) {
	if p == nil {
		return JobShardSpec{}, false
	}
	entry, ok := p.tree.Get(bucketShards{start: start})
	if !ok || partitionNum < 0 || partitionNum >= len(entry.specs) {
		return JobShardSpec{}, false
	}
	return entry.specs[partitionNum], true
}

// Buckets returns the bucket starts in chronological order.
func (p *ShardPlan) Buckets() []time.Time {
	starts := make([]time.Time, 0, p.Len())
	p.Ascend(func(start time.Time, _ []JobShardSpec) bool {
		starts = append(starts, start)
		return true
	})
	return starts
}

// Ascend calls fn for every bucket in chronological order until fn returns false.
// The specs slice passed to fn must not be modified.
func (p *ShardPlan) Ascend(fn func(start time.Time, specs []JobShardSpec) bool) {
	if p == nil {
		return
	}
	p.tree.Ascend(func(entry bucketShards) bool {
		return fn(entry.start, entry.specs)
	})
}

// Equal reports whether both plans have the same buckets with the same specs.
func (p *ShardPlan) Equal(other *ShardPlan) bool {
	if p.Len() != other.Len() || p.TotalShards() != other.TotalShards() {
		return false
	}
	mine := p.entries()
	theirs := other.entries()
	for i := range mine {
		if !mine[i].start.Equal(theirs[i].start) || len(mine[i].specs) != len(theirs[i].specs) {
			return false
		}
		for j := range mine[i].specs {
			if !mine[i].specs[j].Equal(theirs[i].specs[j]) {
				return false
			}
		}
	}
	return true
}

func (p *ShardPlan) entries() []bucketShards {
	out := make([]bucketShards, 0, p.Len())
	if p == nil {
		return out
	}
	p.tree.Ascend(func(entry bucketShards) bool {
		out = append(out, entry)
		return true
	})
	return out
}

// ShardPlanBuilder accumulates buckets for a ShardPlan.
type ShardPlanBuilder struct {
	tree   *btree.BTreeG[bucketShards]
	shards int
	built  bool
}

// NewShardPlanBuilder creates an empty builder.
func NewShardPlanBuilder() *ShardPlanBuilder {
	return &ShardPlanBuilder{
		tree: btree.NewG(planDegree, lessBucketShards),
	}
}

// Add records the specs for the bucket starting at start.
// Adding the same start twice is an error.
func (b *ShardPlanBuilder) Add(start time.Time, specs []JobShardSpec) error {
	if b.built {
		return fmt.Errorf("types: shard plan already built")
	}
	entry := bucketShards{start: start.UTC(), specs: slices.Clone(specs)}
	if b.tree.Has(entry) {
		return fmt.Errorf("types: duplicate bucket %s", entry.start.Format(time.RFC3339))
	}
	b.tree.ReplaceOrInsert(entry)
	b.shards += len(specs)
	return nil
}

// Build returns the plan. The builder cannot be used afterwards.
func (b *ShardPlanBuilder) Build() *ShardPlan {
	b.built = true
	return &ShardPlan{tree: b.tree, shards: b.shards}
}
