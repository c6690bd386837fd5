package determine

import (
	"context"
	"time"

	"github.com/arkilian/shardplan/internal/errors"
	"github.com/arkilian/shardplan/internal/job"
	"github.com/arkilian/shardplan/internal/metrics"
	"github.com/arkilian/shardplan/pkg/types"
	"go.uber.org/zap"
)

// Run modes reported in logs and metrics.
const (
	ModeFixed     = "fixed"
	ModeDetermine = "determine"
)

// Configuration is the ingestion configuration the determination job reads
// and commits the shard plan into.
type Configuration interface {
	// Paths returns the working and output locations of the job.
	Paths() job.Paths

	// IsDeterminingPartitions reports whether shard counts are estimated
	// from the input data instead of being fixed.
	IsDeterminingPartitions() bool

	// PartitionJob returns the data-driven estimator sub-job.
	PartitionJob() (job.Job, error)

	// NumShards returns the fixed number of shards per bucket.
	NumShards() int

	// PartitionDimensions returns the dimensions hashed for routing.
	PartitionDimensions() []string

	// SegmentGranularIntervals returns the time buckets of the job.
	SegmentGranularIntervals() ([]types.TimeBucket, error)

	// SetShardSpecs commits the plan. It may be called once.
	SetShardSpecs(plan *types.ShardPlan) error
}

// ConfigurationJob is the top-level planning step. It prepares the job paths,
// then either delegates to the data-driven estimator or assigns a fixed number
// of shards per bucket and commits the plan, and finally runs the collected
// sub-jobs.
type ConfigurationJob struct {
	cfg         Configuration
	preparer    job.PathPreparer
	log         *zap.Logger
	metrics     *metrics.Metrics
	parallelism int
	followUps   []job.Job
}

// Option configures a ConfigurationJob.
type Option func(*ConfigurationJob)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(j *ConfigurationJob) {
		if log != nil {
			j.log = log
		}
	}
}

// WithMetrics records run outcomes and plan shapes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(j *ConfigurationJob) {
		j.metrics = m
	}
}

// WithPathPreparer replaces the default local directory preparer.
func WithPathPreparer(p job.PathPreparer) Option {
	return func(j *ConfigurationJob) {
		if p != nil {
			j.preparer = p
		}
	}
}

// WithParallelism builds bucket specs on n goroutines when n > 1.
func WithParallelism(n int) Option {
	return func(j *ConfigurationJob) {
		j.parallelism = n
	}
}

// WithFollowUp appends jobs that run after the plan is decided, in order.
func WithFollowUp(jobs ...job.Job) Option {
	return func(j *ConfigurationJob) {
		j.followUps = append(j.followUps, jobs...)
	}
}

// NewConfigurationJob creates the determination job for cfg.
func NewConfigurationJob(cfg Configuration, opts ...Option) *ConfigurationJob {
	j := &ConfigurationJob{
		cfg:         cfg,
		preparer:    job.LocalPathPreparer{},
		log:         zap.NewNop(),
		parallelism: 1,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name implements job.Job.
func (j *ConfigurationJob) Name() string {
	return "determine-configuration"
}

// Run executes the planning step. It returns nil only if the paths were
// prepared and every sub-job succeeded.
func (j *ConfigurationJob) Run(ctx context.Context) error {
	mode := ModeFixed
	if j.cfg.IsDeterminingPartitions() {
		mode = ModeDetermine
	}

	start := time.Now()
	err := j.run(ctx)
	j.metrics.ObserveRun(mode, time.Since(start), err)
	if stage, ok := errors.GetDetail(err, "stage"); ok {
		if name, ok := stage.(string); ok {
			j.metrics.IncStageFailures(name)
		}
	}
	return err
}

func (j *ConfigurationJob) run(ctx context.Context) error {
	paths := j.cfg.Paths()
	if err := j.preparer.EnsurePaths(ctx, paths); err != nil {
		j.log.Error("Failed to prepare paths",
			zap.String("working_path", paths.Working),
			zap.String("output_path", paths.Output),
			zap.Error(err))
		return errors.NewSetupError("failed to prepare working paths", err)
	}

	var jobs []job.Job
	if j.cfg.IsDeterminingPartitions() {
		estimator, err := j.cfg.PartitionJob()
		if err != nil {
			return err
		}
		j.log.Info("Determining partitions from input data", zap.String("stage", estimator.Name()))
		jobs = append(jobs, estimator)
	} else {
		plan, err := j.assign(ctx)
		if err != nil {
			return err
		}
		j.logPlan(plan)
		if err := j.cfg.SetShardSpecs(plan); err != nil {
			return err
		}
		j.metrics.ObservePlan(plan.Len(), shardsByKind(plan))
	}

	jobs = append(jobs, j.followUps...)
	return job.RunJobs(ctx, j.log, jobs...)
}

func (j *ConfigurationJob) assign(ctx context.Context) (*types.ShardPlan, error) {
	buckets, err := j.cfg.SegmentGranularIntervals()
	if err != nil {
		return nil, err
	}
	n := j.cfg.NumShards()
	dims := WithPartitionDimensions(j.cfg.PartitionDimensions())

	if j.parallelism > 1 {
		return AssignParallel(ctx, n, buckets, j.parallelism, dims)
	}
	return Assign(n, buckets, dims)
}

func (j *ConfigurationJob) logPlan(plan *types.ShardPlan) {
	plan.Ascend(func(start time.Time, specs []types.JobShardSpec) bool {
		j.log.Info("Assigned shard specs",
			zap.Time("bucket", start),
			zap.Stringers("specs", specs))
		return true
	})
	j.log.Info("Shard plan ready",
		zap.Int("buckets", plan.Len()),
		zap.Int("shards", plan.TotalShards()))
}

func shardsByKind(plan *types.ShardPlan) map[string]int {
	counts := make(map[string]int)
	plan.Ascend(func(_ time.Time, specs []types.JobShardSpec) bool {
		for _, s := range specs {
			counts[string(s.Actual.Kind())]++
		}
		return true
	})
	return counts
}
