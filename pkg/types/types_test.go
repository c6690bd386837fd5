package types

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTimeBucket(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	b := NewTimeBucket(jan1.In(loc), jan1.AddDate(0, 0, 1).In(loc))

	assert.Equal(t, time.UTC, b.Start.Location())
	assert.Equal(t, 24*time.Hour, b.Duration())
	assert.Equal(t, "2024-01-01T00:00:00Z/2024-01-02T00:00:00Z", b.String())

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"start is inclusive", jan1, true},
		{"inside", jan1.Add(13 * time.Hour), true},
		{"end is exclusive", jan1.AddDate(0, 0, 1), false},
		{"before", jan1.Add(-time.Nanosecond), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Contains(tt.at))
		})
	}
}

func TestShardSpecsEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b ShardSpec
		want bool
	}{
		{"same hashed", NewHashedShardSpec(1, 4, []string{"a"}), NewHashedShardSpec(1, 4, []string{"a"}), true},
		{"nil and empty dims", NewHashedShardSpec(0, 2, nil), NewHashedShardSpec(0, 2, []string{}), true},
		{"different partition", NewHashedShardSpec(0, 4, nil), NewHashedShardSpec(1, 4, nil), false},
		{"different count", NewHashedShardSpec(0, 2, nil), NewHashedShardSpec(0, 3, nil), false},
		{"different dims", NewHashedShardSpec(0, 2, []string{"a"}), NewHashedShardSpec(0, 2, []string{"b"}), false},
		{"single", SingleShardSpec{}, SingleShardSpec{}, true},
		{"mixed", SingleShardSpec{}, NewHashedShardSpec(0, 1, nil), false},
		{"nil", nil, SingleShardSpec{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShardSpecsEqual(tt.a, tt.b))
		})
	}
}

func TestHashedShardSpecCopiesDimensions(t *testing.T) {
	dims := []string{"country"}
	s := NewHashedShardSpec(0, 2, dims)
	dims[0] = "device"
	assert.Equal(t, []string{"country"}, s.Dimensions)
}

func TestShardSpecStrings(t *testing.T) {
	s := NewJobShardSpec(NewHashedShardSpec(1, 3, []string{"a"}), 7)
	assert.Equal(t,
		"JobShardSpec{actualSpec=HashedShardSpec{partitionNum=1, partitions=3, partitionDimensions=[a]}, shardNum=7}",
		s.String())
	assert.Equal(t, "NoneShardSpec", SingleShardSpec{}.String())
	assert.Equal(t, KindHashed, s.Actual.Kind())
	assert.Equal(t, 1, s.Actual.PartitionNum())
	assert.Equal(t, 0, SingleShardSpec{}.PartitionNum())
}

func hashedSpecs(first, n int) []JobShardSpec {
	specs := make([]JobShardSpec, n)
	for i := range n {
		specs[i] = NewJobShardSpec(NewHashedShardSpec(i, n, nil), first+i)
	}
	return specs
}

func TestShardPlanBuilder(t *testing.T) {
	b := NewShardPlanBuilder()
	// Insertion order does not matter.
	require.NoError(t, b.Add(jan1.AddDate(0, 0, 2), hashedSpecs(4, 2)))
	require.NoError(t, b.Add(jan1, hashedSpecs(0, 2)))
	require.NoError(t, b.Add(jan1.AddDate(0, 0, 1), hashedSpecs(2, 2)))

	assert.Error(t, b.Add(jan1, hashedSpecs(6, 1)), "duplicate bucket")

	p := b.Build()
	assert.Error(t, b.Add(jan1.AddDate(0, 0, 9), nil), "builder used after Build")

	assert.Equal(t, 3, p.Len())
	assert.Equal(t, 6, p.TotalShards())
	want := []time.Time{jan1, jan1.AddDate(0, 0, 1), jan1.AddDate(0, 0, 2)}
	if diff := cmp.Diff(want, p.Buckets()); diff != "" {
		t.Errorf("Buckets() mismatch (-want +got):\n%s", diff)
	}

	var shardNums []int
	p.Ascend(func(_ time.Time, specs []JobShardSpec) bool {
		for _, s := range specs {
			shardNums = append(shardNums, s.ShardNum)
		}
		return true
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, shardNums)
}

func TestShardPlanAscendStops(t *testing.T) {
	b := NewShardPlanBuilder()
	for i := range 5 {
		require.NoError(t, b.Add(jan1.AddDate(0, 0, i), hashedSpecs(i, 1)))
	}
	p := b.Build()

	visited := 0
	p.Ascend(func(time.Time, []JobShardSpec) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited)
}

func TestShardPlanGetAndLookup(t *testing.T) {
	b := NewShardPlanBuilder()
	require.NoError(t, b.Add(jan1, hashedSpecs(0, 3)))
	p := b.Build()

	specs, ok := p.Get(jan1)
	require.True(t, ok)
	require.Len(t, specs, 3)
	// Get returns a copy.
	specs[0] = NewJobShardSpec(SingleShardSpec{}, 99)
	again, _ := p.Get(jan1)
	assert.Equal(t, 0, again[0].ShardNum)

	_, ok = p.Get(jan1.Add(time.Hour))
	assert.False(t, ok)

	s, ok := p.Lookup(jan1, 2)
	require.True(t, ok)
	assert.Equal(t, 2, s.ShardNum)

	for _, n := range []int{-1, 3} {
		_, ok = p.Lookup(jan1, n)
		assert.False(t, ok, n)
	}

	// Lookup by a bucket start in another zone finds the same bucket.
	_, ok = p.Lookup(jan1.In(time.FixedZone("X", 3600)), 0)
	assert.True(t, ok)
}

func TestShardPlanEqual(t *testing.T) {
	build := func(specs ...[]JobShardSpec) *ShardPlan {
		b := NewShardPlanBuilder()
		for i, s := range specs {
			require.NoError(t, b.Add(jan1.AddDate(0, 0, i), s))
		}
		return b.Build()
	}

	a := build(hashedSpecs(0, 2), hashedSpecs(2, 2))
	assert.True(t, a.Equal(build(hashedSpecs(0, 2), hashedSpecs(2, 2))))
	assert.False(t, a.Equal(build(hashedSpecs(0, 2), hashedSpecs(3, 2))))
	assert.False(t, a.Equal(build(hashedSpecs(0, 2))))
	assert.False(t, a.Equal(build(hashedSpecs(0, 2), []JobShardSpec{
		NewJobShardSpec(SingleShardSpec{}, 2), NewJobShardSpec(SingleShardSpec{}, 3),
	})))

	assert.True(t, EmptyShardPlan().Equal(build()))
}

func TestNilShardPlan(t *testing.T) {
	var p *ShardPlan
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 0, p.TotalShards())
	assert.Empty(t, p.Buckets())
	_, ok := p.Get(jan1)
	assert.False(t, ok)
	assert.True(t, p.Equal(EmptyShardPlan()))
}

func TestInputFormatValid(t *testing.T) {
	for _, f := range []InputFormat{FormatUnset, FormatText, FormatCombineText, FormatParquet} {
		assert.True(t, f.Valid(), f)
	}
	assert.False(t, InputFormat("orc").Valid())
}
