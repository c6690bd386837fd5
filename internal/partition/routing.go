// Package partition routes rows to the shards of a time bucket and encodes
// shard specs for the job configuration.
//
// Router, IsInChunk and HashRow are the routing API for the indexing workers
// that consume a stored plan. Plan validation routes sample rows through every
// bucket with them before a plan is accepted.
package partition

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/arkilian/shardplan/pkg/types"
	"github.com/spaolacci/murmur3"
)

// routingSamples is the number of rows checkRouting routes per bucket.
const routingSamples = 16

// Router determines which shard of a bucket a row belongs to.
type Router struct {
	specs []types.JobShardSpec
	kind  types.ShardSpecKind
}

// NewRouter creates a router over the shard specs of one bucket.
// The specs must be in partition order, as stored in a ShardPlan.
func NewRouter(specs []types.JobShardSpec) (*Router, error) {
	if err := validateBucketSpecs(specs); err != nil {
		return nil, err
	}
	return &Router{specs: specs, kind: specs[0].Actual.Kind()}, nil
}

// RouteRow returns the shard spec that owns row.
func (r *Router) RouteRow(row types.InputRow) (types.JobShardSpec, error) {
	switch r.kind {
	case types.KindSingle:
		return r.specs[0], nil
	case types.KindHashed:
		spec := r.specs[0].Actual.(types.HashedShardSpec)
		h, err := HashRow(row, spec.Dimensions)
		if err != nil {
			return types.JobShardSpec{}, err
		}
		return r.specs[int(h%uint32(len(r.specs)))], nil
	default:
		return types.JobShardSpec{}, fmt.Errorf("routing: unsupported shard spec %q", r.kind)
	}
}

// RouteRows groups rows by the job-wide shard number that owns them.
func (r *Router) RouteRows(rows []types.InputRow) (map[int][]types.InputRow, error) {
	groups := make(map[int][]types.InputRow)
	for _, row := range rows {
		spec, err := r.RouteRow(row)
		if err != nil {
			return nil, fmt.Errorf("routing: failed to route row: %w", err)
		}
		groups[spec.ShardNum] = append(groups[spec.ShardNum], row)
	}
	return groups, nil
}

// IsInChunk reports whether row belongs to the shard described by spec.
func IsInChunk(spec types.ShardSpec, row types.InputRow) (bool, error) {
	switch s := spec.(type) {
	case types.SingleShardSpec:
		return true, nil
	case types.HashedShardSpec:
		if s.Partitions <= 0 {
			return false, fmt.Errorf("routing: partitions must be > 0, got %d", s.Partitions)
		}
		h, err := HashRow(row, s.Dimensions)
		if err != nil {
			return false, err
		}
		return int(h%uint32(s.Partitions)) == s.Partition, nil
	default:
		return false, fmt.Errorf("routing: unsupported shard spec %T", spec)
	}
}

// HashRow computes the 32-bit murmur3 hash of the row's group key: the
// timestamp plus the values of dims (all dimensions when dims is empty).
func HashRow(row types.InputRow, dims []string) (uint32, error) {
	key, err := groupKey(row, dims)
	if err != nil {
		return 0, err
	}
	return murmur3.Sum32(key), nil
}

// groupKey serializes [timestamp, {dim: values}] as JSON. Map keys are
// emitted sorted, so equal rows always produce equal keys.
func groupKey(row types.InputRow, dims []string) ([]byte, error) {
	selected := row.Dimensions
	if len(dims) > 0 {
		selected = make(map[string][]string, len(dims))
		for _, d := range dims {
			if v, ok := row.Dimensions[d]; ok {
				selected[d] = v
			}
		}
	}
	if selected == nil {
		selected = map[string][]string{}
	}
	key, err := json.Marshal([]interface{}{row.Timestamp, selected})
	if err != nil {
		return nil, fmt.Errorf("routing: failed to encode group key: %w", err)
	}
	return key, nil
}

// validateBucketSpecs checks that specs form one routable bucket.
func validateBucketSpecs(specs []types.JobShardSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("routing: bucket has no shard specs")
	}
	for i, s := range specs {
		if s.Actual == nil {
			return fmt.Errorf("routing: shard %d has no spec", s.ShardNum)
		}
		if i > 0 && s.Actual.Kind() != specs[0].Actual.Kind() {
			return fmt.Errorf("routing: bucket mixes %q and %q specs", specs[0].Actual.Kind(), s.Actual.Kind())
		}
		if s.Actual.PartitionNum() != i {
			return fmt.Errorf("routing: shard at position %d has partitionNum %d", i, s.Actual.PartitionNum())
		}
	}
	switch specs[0].Actual.Kind() {
	case types.KindSingle:
		if len(specs) != 1 {
			return fmt.Errorf("routing: bucket has %d single specs, want 1", len(specs))
		}
	case types.KindHashed:
		first := specs[0].Actual.(types.HashedShardSpec)
		for _, s := range specs {
			h := s.Actual.(types.HashedShardSpec)
			if h.Partitions != len(specs) {
				return fmt.Errorf("routing: hashed spec declares %d partitions, bucket has %d", h.Partitions, len(specs))
			}
			if !sameDimensions(h.Dimensions, first.Dimensions) {
				return fmt.Errorf("routing: shard %d hashes on %v, bucket hashes on %v", s.ShardNum, h.Dimensions, first.Dimensions)
			}
		}
	}
	return nil
}

func sameDimensions(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sampleRows builds n rows inside the bucket starting at start, with a
// distinct value for every dimension the specs hash on.
func sampleRows(start time.Time, specs []types.JobShardSpec, n int) []types.InputRow {
	var dims []string
	if h, ok := specs[0].Actual.(types.HashedShardSpec); ok {
		dims = h.Dimensions
	}
	rows := make([]types.InputRow, n)
	for i := range rows {
		row := types.InputRow{Timestamp: start.UnixMilli(), Dimensions: map[string][]string{}}
		for _, d := range dims {
			row.Dimensions[d] = []string{fmt.Sprintf("%s-%d", d, i)}
		}
		if len(dims) == 0 {
			row.Dimensions["sample"] = []string{fmt.Sprintf("%d", i)}
		}
		rows[i] = row
	}
	return rows
}

// checkRouting routes sample rows through the bucket and verifies that each
// row is claimed by exactly the shard the router picked.
func checkRouting(start time.Time, specs []types.JobShardSpec) error {
	router, err := NewRouter(specs)
	if err != nil {
		return err
	}
	for _, row := range sampleRows(start, specs, routingSamples) {
		owner, err := router.RouteRow(row)
		if err != nil {
			return err
		}
		for _, s := range specs {
			in, err := IsInChunk(s.Actual, row)
			if err != nil {
				return err
			}
			if in != (s.ShardNum == owner.ShardNum) {
				return fmt.Errorf("routing: shard %d disagrees with router owner %d", s.ShardNum, owner.ShardNum)
			}
		}
	}
	return nil
}
