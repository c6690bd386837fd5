package partition

import (
	"strings"
	"testing"
	"time"

	"github.com/arkilian/shardplan/pkg/types"
)

var (
	day1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

func hashedBucket(first, n int) []types.JobShardSpec {
	specs := make([]types.JobShardSpec, n)
	for i := 0; i < n; i++ {
		specs[i] = types.NewJobShardSpec(types.NewHashedShardSpec(i, n, nil), first+i)
	}
	return specs
}

func buildPlan(t *testing.T, buckets map[time.Time][]types.JobShardSpec) *types.ShardPlan {
	t.Helper()
	b := types.NewShardPlanBuilder()
	for start, specs := range buckets {
		if err := b.Add(start, specs); err != nil {
			t.Fatalf("Add(%s): %v", start, err)
		}
	}
	return b.Build()
}

func TestPlanValidator_ValidateBucket(t *testing.T) {
	validator := NewPlanValidatorForShards(2)

	tests := []struct {
		name      string
		specs     []types.JobShardSpec
		prevShard int
		wantError bool
		errMsg    string
	}{
		{
			name:      "valid hashed bucket",
			specs:     hashedBucket(0, 2),
			prevShard: -1,
		},
		{
			name:      "valid bucket after previous shards",
			specs:     hashedBucket(4, 2),
			prevShard: 3,
		},
		{
			name:      "shard numbers not increasing across buckets",
			specs:     hashedBucket(2, 2),
			prevShard: 3,
			wantError: true,
			errMsg:    "greater than 3",
		},
		{
			name:      "wrong shard count",
			specs:     hashedBucket(0, 3),
			prevShard: -1,
			wantError: true,
			errMsg:    "expected 2 shards",
		},
		{
			name:      "empty bucket",
			specs:     nil,
			prevShard: -1,
			wantError: true,
			errMsg:    "no shard specs",
		},
		{
			name: "mixed kinds",
			specs: []types.JobShardSpec{
				types.NewJobShardSpec(types.NewHashedShardSpec(0, 2, nil), 0),
				types.NewJobShardSpec(types.SingleShardSpec{}, 1),
			},
			prevShard: -1,
			wantError: true,
			errMsg:    "mixes",
		},
		{
			name: "hashed specs disagree on dimensions",
			specs: []types.JobShardSpec{
				types.NewJobShardSpec(types.NewHashedShardSpec(0, 2, []string{"user"}), 0),
				types.NewJobShardSpec(types.NewHashedShardSpec(1, 2, nil), 1),
			},
			prevShard: -1,
			wantError: true,
			errMsg:    "hashes on",
		},
		{
			name: "valid bucket hashed on a dimension",
			specs: []types.JobShardSpec{
				types.NewJobShardSpec(types.NewHashedShardSpec(0, 2, []string{"user"}), 0),
				types.NewJobShardSpec(types.NewHashedShardSpec(1, 2, []string{"user"}), 1),
			},
			prevShard: -1,
		},
		{
			name: "partition numbers out of order",
			specs: []types.JobShardSpec{
				types.NewJobShardSpec(types.NewHashedShardSpec(1, 2, nil), 0),
				types.NewJobShardSpec(types.NewHashedShardSpec(0, 2, nil), 1),
			},
			prevShard: -1,
			wantError: true,
			errMsg:    "partitionNum",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validator.ValidateBucket(day1, tt.specs, tt.prevShard)
			if !tt.wantError {
				if len(errs) > 0 {
					t.Errorf("unexpected validation errors: %v", errs)
				}
				return
			}
			if len(errs) == 0 {
				t.Fatalf("expected validation error containing %q", tt.errMsg)
			}
			found := false
			for _, err := range errs {
				if strings.Contains(err.Message, tt.errMsg) {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected error containing %q, got %v", tt.errMsg, errs)
			}
		})
	}
}

func TestPlanValidator_SingleShards(t *testing.T) {
	validator := NewPlanValidatorForShards(0)

	ok := []types.JobShardSpec{types.NewJobShardSpec(types.SingleShardSpec{}, 0)}
	if errs := validator.ValidateBucket(day1, ok, -1); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}

	if errs := validator.ValidateBucket(day1, hashedBucket(0, 1), -1); len(errs) == 0 {
		t.Error("expected error for hashed spec when single shards are configured")
	}
}

func TestValidatePlan(t *testing.T) {
	good := buildPlan(t, map[time.Time][]types.JobShardSpec{
		day1: hashedBucket(0, 2),
		day2: hashedBucket(2, 2),
	})
	if err := ValidatePlan(good); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := buildPlan(t, map[time.Time][]types.JobShardSpec{
		day1: hashedBucket(2, 2),
		day2: hashedBucket(0, 2),
	})
	err := ValidatePlan(bad)
	if err == nil {
		t.Fatal("expected error for decreasing shard numbers")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 1 {
		t.Errorf("expected 1 validation error, got %d: %v", len(verrs), verrs)
	}
	if !strings.Contains(err.Error(), "greater than 3") {
		t.Errorf("unexpected message: %s", err.Error())
	}

	if err := ValidatePlan(types.EmptyShardPlan()); err != nil {
		t.Errorf("empty plan should be valid: %v", err)
	}
}
