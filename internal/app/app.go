// Package app wires the shared resources of a planning run and executes it.
package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/arkilian/shardplan/internal/catalog"
	"github.com/arkilian/shardplan/internal/config"
	"github.com/arkilian/shardplan/internal/determine"
	"github.com/arkilian/shardplan/internal/errors"
	"github.com/arkilian/shardplan/internal/job"
	"github.com/arkilian/shardplan/internal/lifecycle"
	"github.com/arkilian/shardplan/internal/metrics"
	"github.com/arkilian/shardplan/internal/pathspec"
	"github.com/arkilian/shardplan/internal/plan"
	"github.com/arkilian/shardplan/internal/storage"
	"github.com/arkilian/shardplan/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Namespace prefixes all exported metrics.
const Namespace = "shardplan"

// App owns the storage, catalog and metrics of planning runs.
type App struct {
	cfg *config.Config
	log *zap.Logger

	// Shared resources
	storage   storage.ObjectStorage
	catalog   *catalog.SQLiteCatalog
	metrics   *metrics.Metrics
	planStore *plan.Store

	// Lifecycle
	shutdown *lifecycle.Manager
	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// RunOptions controls one planning run.
type RunOptions struct {
	// RunID identifies the run; a random one is generated when empty
	RunID string

	// Parallelism is the number of goroutines assigning bucket specs
	Parallelism int

	// DryRun decides the plan without persisting or recording it
	DryRun bool
}

// Result describes a finished run.
type Result struct {
	RunID      string
	Plan       *types.ShardPlan
	ObjectPath string
	Inputs     []job.InputSource
	Duration   time.Duration
}

// New creates an App for cfg. The configuration is resolved and validated.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}
	return &App{cfg: cfg, log: log}, nil
}

// Start opens the shared resources and starts the metrics endpoint if one is
// configured.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.shutdown = lifecycle.NewManager(30*time.Second, a.log)

	if err := a.initSharedResources(ctx); err != nil {
		a.shutdown.Shutdown(context.Background(), "start failed")
		cancel()
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	if a.cfg.MetricsAddr != "" {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.metrics.Serve(ctx, a.cfg.MetricsAddr); err != nil {
				a.log.Error("Metrics server error", zap.Error(err))
			}
		}()
		a.log.Info("Serving metrics", zap.String("addr", a.cfg.MetricsAddr))
	}

	return nil
}

// initSharedResources initializes storage, the plan catalog and metrics.
func (a *App) initSharedResources(ctx context.Context) error {
	var err error

	a.storage, err = storage.Open(ctx, a.cfg.StorageOptions())
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	if c, ok := a.storage.(io.Closer); ok {
		a.shutdown.RegisterCloser("storage", c)
	}

	codec, err := plan.ParseCodec(a.cfg.Plan.Codec)
	if err != nil {
		return err
	}
	a.planStore = plan.NewStore(a.storage, a.cfg.WorkingPath, codec, a.log)

	if a.cfg.CatalogPath != "" {
		a.catalog, err = catalog.NewCatalog(a.cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to open catalog: %w", err)
		}
		a.shutdown.RegisterCloser("catalog", a.catalog)
	}

	if a.metrics == nil {
		a.metrics = metrics.New(Namespace)
	}
	return nil
}

// Metrics returns the metrics of the app.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Catalog returns the plan catalog, or nil when none is configured.
func (a *App) Catalog() *catalog.SQLiteCatalog {
	return a.catalog
}

// PlanStore returns the store holding plan artifacts.
func (a *App) PlanStore() *plan.Store {
	return a.planStore
}

// Run registers the input paths, decides the shard plan and, unless this is a
// dry run, persists and records it.
func (a *App) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	a.mu.Lock()
	running := a.running
	a.mu.Unlock()
	if !running || !a.shutdown.Track() {
		return nil, fmt.Errorf("app is not running")
	}
	defer a.shutdown.Done()

	res := &Result{RunID: opts.RunID}
	if res.RunID == "" {
		res.RunID = uuid.New().String()
	}
	log := a.log.With(zap.String("run_id", res.RunID))
	start := time.Now()

	descriptor := job.NewDescriptor(res.RunID)
	registerInputs := job.NewFunc("register-inputs", func(ctx context.Context) error {
		spec := pathspec.NewStaticPathSpec(a.cfg.Input.Paths, a.cfg.Input.InputFormat,
			pathspec.WithLogger(log), pathspec.WithMetrics(a.metrics))
		return spec.AddInputPaths(a.cfg, descriptor)
	})

	jobOpts := []determine.Option{
		determine.WithLogger(log),
		determine.WithMetrics(a.metrics),
		determine.WithPathPreparer(job.NewStoragePathPreparer(a.storage)),
		determine.WithParallelism(opts.Parallelism),
	}
	if !opts.DryRun {
		jobOpts = append(jobOpts, determine.WithFollowUp(
			a.persistPlanJob(res),
			a.recordPlanJob(res),
		))
	}
	determination := determine.NewConfigurationJob(a.cfg, jobOpts...)

	jobs := []job.Job{registerInputs, determination}
	if !opts.DryRun {
		jobs = append([]job.Job{a.checkRunJob(res.RunID)}, jobs...)
	}
	if err := job.RunJobs(ctx, log, jobs...); err != nil {
		return nil, err
	}

	res.Plan = a.cfg.ShardSpecs()
	if res.Plan == nil {
		return nil, errors.NewInternalError("planning finished without a committed shard plan", nil)
	}
	res.Inputs = descriptor.Inputs()
	res.Duration = time.Since(start)

	log.Info("Planning run finished",
		zap.Int("buckets", res.Plan.Len()),
		zap.Int("shards", res.Plan.TotalShards()),
		zap.Int("inputs", len(res.Inputs)),
		zap.String("plan", res.ObjectPath),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// checkRunJob fails when runID was already recorded or its plan is already
// stored, so a rerun never overwrites the artifact of an earlier run.
func (a *App) checkRunJob(runID string) job.Job {
	return job.NewFunc("check-run", func(ctx context.Context) error {
		if a.catalog != nil {
			_, err := a.catalog.GetRun(ctx, runID)
			if err == nil {
				return errors.NewCatalogError(errors.CodeDuplicateRun,
					fmt.Sprintf("run %s already recorded", runID), nil)
			}
			if errors.GetCode(err) != errors.CodeRunNotFound {
				return err
			}
		}
		exists, err := a.planStore.Exists(ctx, runID)
		if err != nil {
			return err
		}
		if exists {
			return errors.NewCatalogError(errors.CodeDuplicateRun,
				fmt.Sprintf("plan of run %s already stored at %s", runID, a.planStore.Key(runID)), nil)
		}
		return nil
	})
}

func (a *App) persistPlanJob(res *Result) job.Job {
	return job.NewFunc("persist-plan", func(ctx context.Context) error {
		p := a.cfg.ShardSpecs()
		if p == nil {
			return errors.NewInternalError("no shard plan committed", nil)
		}
		key, err := a.planStore.Save(ctx, plan.Artifact{
			RunID:     res.RunID,
			CreatedAt: time.Now().UTC(),
			Plan:      p,
		})
		if err != nil {
			return err
		}
		res.ObjectPath = key
		return nil
	})
}

func (a *App) recordPlanJob(res *Result) job.Job {
	return job.NewFunc("record-catalog", func(ctx context.Context) error {
		if a.catalog == nil {
			return nil
		}
		return a.catalog.RecordPlan(ctx, res.RunID, a.cfg.ShardSpecs(), res.ObjectPath)
	})
}

// Stop waits for in-flight runs, shuts down the metrics endpoint and
// releases the shared resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	err := a.shutdown.Shutdown(ctx, "stop requested")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		a.log.Warn("Shutdown timeout, metrics server may not have stopped")
	}

	return err
}
