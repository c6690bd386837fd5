package partition

import (
	"fmt"
	"strings"
	"time"

	"github.com/arkilian/shardplan/pkg/types"
)

// ValidationError describes one problem found in a shard plan.
type ValidationError struct {
	Bucket   time.Time
	ShardNum int
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bucket %s, shard %d: %s", e.Bucket.Format(time.RFC3339), e.ShardNum, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// PlanValidator checks that a shard plan is internally consistent: shard
// numbers strictly increase in bucket order, each bucket is routable, and
// (when configured) every bucket has the expected shard count.
type PlanValidator struct {
	shardsPerInterval int
	checkCount        bool
}

// NewPlanValidator creates a validator that only checks structure.
func NewPlanValidator() *PlanValidator {
	return &PlanValidator{}
}

// NewPlanValidatorForShards creates a validator that also checks the bucket
// shape produced by a fixed shards-per-interval setting.
func NewPlanValidatorForShards(shardsPerInterval int) *PlanValidator {
	return &PlanValidator{shardsPerInterval: shardsPerInterval, checkCount: true}
}

// ValidateBucket validates the specs of one bucket. prevShard is the last
// shard number of the preceding bucket, or -1.
func (v *PlanValidator) ValidateBucket(start time.Time, specs []types.JobShardSpec, prevShard int) []*ValidationError {
	var errs []*ValidationError

	if err := validateBucketSpecs(specs); err != nil {
		shard := -1
		if len(specs) > 0 {
			shard = specs[0].ShardNum
		}
		errs = append(errs, &ValidationError{Bucket: start, ShardNum: shard, Message: err.Error()})
	} else if err := checkRouting(start, specs); err != nil {
		errs = append(errs, &ValidationError{Bucket: start, ShardNum: specs[0].ShardNum, Message: err.Error()})
	}

	last := prevShard
	for _, s := range specs {
		if s.ShardNum <= last {
			errs = append(errs, &ValidationError{
				Bucket:   start,
				ShardNum: s.ShardNum,
				Message:  fmt.Sprintf("shard number must be greater than %d", last),
			})
		}
		last = s.ShardNum
	}

	if v.checkCount {
		want, kind := 1, types.KindSingle
		if v.shardsPerInterval > 0 {
			want, kind = v.shardsPerInterval, types.KindHashed
		}
		if len(specs) != want {
			errs = append(errs, &ValidationError{
				Bucket:   start,
				ShardNum: prevShard + 1,
				Message:  fmt.Sprintf("expected %d shards, got %d", want, len(specs)),
			})
		}
		for _, s := range specs {
			if s.Actual != nil && s.Actual.Kind() != kind {
				errs = append(errs, &ValidationError{
					Bucket:   start,
					ShardNum: s.ShardNum,
					Message:  fmt.Sprintf("expected %q spec, got %q", kind, s.Actual.Kind()),
				})
				break
			}
		}
	}

	return errs
}

// ValidatePlan validates every bucket of plan in chronological order.
func (v *PlanValidator) ValidatePlan(plan *types.ShardPlan) ValidationErrors {
	var all ValidationErrors
	prev := -1
	plan.Ascend(func(start time.Time, specs []types.JobShardSpec) bool {
		all = append(all, v.ValidateBucket(start, specs, prev)...)
		if len(specs) > 0 {
			prev = specs[len(specs)-1].ShardNum
		}
		return true
	})
	return all
}

// Validate returns an error if plan has any problem.
func (v *PlanValidator) Validate(plan *types.ShardPlan) error {
	if errs := v.ValidatePlan(plan); len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidatePlan checks the structure of plan without a shard-count expectation.
func ValidatePlan(plan *types.ShardPlan) error {
	return NewPlanValidator().Validate(plan)
}
