package types

import (
	"fmt"
	"slices"
)

// ShardSpecKind is the discriminant of a shard spec variant.
type ShardSpecKind string

const (
	// KindHashed routes rows across N shards of a bucket by hash
	KindHashed ShardSpecKind = "hashed"

	// KindSingle sends every row of a bucket to one shard
	KindSingle ShardSpecKind = "none"
)

// ShardSpec is the row-routing rule carried by one shard of a time bucket.
// The set of variants is closed: HashedShardSpec and SingleShardSpec.
type ShardSpec interface {
	// Kind returns the variant discriminant
	Kind() ShardSpecKind

	// PartitionNum returns the shard index within its bucket
	PartitionNum() int

	fmt.Stringer

	shardSpec()
}

// HashedShardSpec routes a row to one of Partitions shards of its bucket
// using a hash of the partition dimensions.
type HashedShardSpec struct {
	// Partition is the shard index within the bucket, 0..Partitions-1
	Partition int `json:"partitionNum"`

	// Partitions is the number of shards in the bucket
	Partitions int `json:"partitions"`

	// Dimensions lists the dimensions hashed for routing; empty means all
	Dimensions []string `json:"partitionDimensions"`
}

// NewHashedShardSpec creates a hash-routed spec for shard partition of partitions.
func NewHashedShardSpec(partition, partitions int, dimensions []string) HashedShardSpec {
	return HashedShardSpec{
		Partition:  partition,
		Partitions: partitions,
		Dimensions: slices.Clone(dimensions),
	}
}

func (HashedShardSpec) Kind() ShardSpecKind { return KindHashed }

func (s HashedShardSpec) PartitionNum() int { return s.Partition }

func (s HashedShardSpec) String() string {
	return fmt.Sprintf("HashedShardSpec{partitionNum=%d, partitions=%d, partitionDimensions=%v}",
		s.Partition, s.Partitions, s.Dimensions)
}

func (HashedShardSpec) shardSpec() {}

// SingleShardSpec places all rows of a bucket in a single shard.
type SingleShardSpec struct{}

func (SingleShardSpec) Kind() ShardSpecKind { return KindSingle }

func (SingleShardSpec) PartitionNum() int { return 0 }

func (SingleShardSpec) String() string { return "NoneShardSpec" }

func (SingleShardSpec) shardSpec() {}

// ShardSpecsEqual reports whether two specs are the same variant with the same fields.
func ShardSpecsEqual(a, b ShardSpec) bool {
	switch x := a.(type) {
	case HashedShardSpec:
		y, ok := b.(HashedShardSpec)
		return ok && x.Partition == y.Partition && x.Partitions == y.Partitions &&
			slices.Equal(x.Dimensions, y.Dimensions)
	case SingleShardSpec:
		_, ok := b.(SingleShardSpec)
		return ok
	default:
		return false
	}
}

// JobShardSpec wraps a ShardSpec with the shard number that is unique across
// the whole ingestion job. Worker tasks and output segments are addressed by it.
type JobShardSpec struct {
	// Actual is the routing rule of the shard
	Actual ShardSpec

	// ShardNum is the job-wide shard number
	ShardNum int
}

// NewJobShardSpec wraps spec with the given job-wide shard number.
func NewJobShardSpec(spec ShardSpec, shardNum int) JobShardSpec {
	return JobShardSpec{Actual: spec, ShardNum: shardNum}
}

// Equal reports structural equality.
func (s JobShardSpec) Equal(other JobShardSpec) bool {
	return s.ShardNum == other.ShardNum && ShardSpecsEqual(s.Actual, other.Actual)
}

func (s JobShardSpec) String() string {
	return fmt.Sprintf("JobShardSpec{actualSpec=%v, shardNum=%d}", s.Actual, s.ShardNum)
}
