package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkilian/shardplan/internal/config"
	"github.com/arkilian/shardplan/internal/determine"
	"github.com/arkilian/shardplan/internal/errors"
	"github.com/arkilian/shardplan/internal/job"
	"github.com/arkilian/shardplan/internal/plan"
	"github.com/arkilian/shardplan/internal/storage"
	"github.com/arkilian/shardplan/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Partitions.NumShards = 2
	cfg.Granularity.Intervals = []string{"2024-01-01/2024-01-04"}
	cfg.Input.Paths = "logs/{a,b}/*.gz"
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { a.Stop(context.Background()) })
	return a
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a := startApp(t, cfg)

	res, err := a.Run(ctx, RunOptions{RunID: "run-1", Parallelism: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Plan.Len())
	assert.Equal(t, 6, res.Plan.TotalShards())
	assert.Equal(t, "work/run-1/shard_specs.json.snappy", res.ObjectPath)
	require.Len(t, res.Inputs, 2)
	assert.Equal(t, "logs/a/*.gz", res.Inputs[0].Path)
	assert.Equal(t, types.FormatText, res.Inputs[0].Format)

	stored, err := a.PlanStore().Load(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, res.Plan.Equal(stored.Plan))

	rec, err := a.Catalog().GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 6, rec.ShardCount)
	assert.Equal(t, res.ObjectPath, rec.ObjectPath)

	s, err := a.Catalog().LookupShard(ctx, "run-1", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, s.ShardNum)

	for _, dir := range []string{"work", "segments"} {
		info, err := os.Stat(filepath.Join(cfg.Storage.Path, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir(), dir)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics().Runs.WithLabelValues("fixed", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Metrics().InputPaths.WithLabelValues("text")))
}

func TestRunRejectsReusedRunID(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a := startApp(t, cfg)

	first, err := a.Run(ctx, RunOptions{RunID: "run-1"})
	require.NoError(t, err)
	require.Equal(t, 6, first.Plan.TotalShards())
	require.NoError(t, a.Stop(ctx))

	// A second configuration over the same data dir with a different shard count.
	cfg2 := testConfig(t)
	cfg2.DataDir = cfg.DataDir
	cfg2.Partitions.NumShards = 3
	b := startApp(t, cfg2)

	_, err = b.Run(ctx, RunOptions{RunID: "run-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.New(errors.ErrCategoryCatalog, errors.CodeDuplicateRun, ""))
	stage, _ := errors.GetDetail(err, "stage")
	assert.Equal(t, "check-run", stage)

	// Neither the stored artifact nor the catalog changed.
	stored, err := b.PlanStore().Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 6, stored.Plan.TotalShards())
	n, err := b.Catalog().ShardCount(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestRunRejectsStoredPlanWithoutCatalogRecord(t *testing.T) {
	ctx := context.Background()
	a := startApp(t, testConfig(t))

	res, err := a.Run(ctx, RunOptions{RunID: "orphan", DryRun: true})
	require.NoError(t, err)
	_, err = a.PlanStore().Save(ctx, plan.Artifact{RunID: "orphan", CreatedAt: time.Now().UTC(), Plan: res.Plan})
	require.NoError(t, err)

	_, err = a.Run(ctx, RunOptions{RunID: "orphan"})
	assert.ErrorIs(t, err, errors.New(errors.ErrCategoryCatalog, errors.CodeDuplicateRun, ""))
	_, err = a.Catalog().GetRun(ctx, "orphan")
	assert.Equal(t, errors.CodeRunNotFound, errors.GetCode(err))
}

func TestRunDryRun(t *testing.T) {
	ctx := context.Background()
	a := startApp(t, testConfig(t))

	res, err := a.Run(ctx, RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, res.ObjectPath)
	assert.Equal(t, 3, res.Plan.Len())

	_, err = a.Catalog().LatestRun(ctx)
	assert.Equal(t, errors.CodeRunNotFound, errors.GetCode(err))
}

func TestRunWithoutIntervals(t *testing.T) {
	cfg := testConfig(t)
	cfg.Granularity.Intervals = nil
	a := startApp(t, cfg)

	_, err := a.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, determine.ErrNoBuckets)
	stage, _ := errors.GetDetail(err, "stage")
	assert.Equal(t, "determine-configuration", stage)
}

func TestRunDeterminingPartitions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Partitions.DeterminePartitions = true
	a := startApp(t, cfg)

	_, err := a.Run(context.Background(), RunOptions{RunID: "no-estimator"})
	assert.ErrorIs(t, err, errors.New(errors.ErrCategoryConfiguration, errors.CodeNoEstimator, ""))

	cfg.SetEstimator(config.EstimatorFunc(func(c *config.Config) job.Job {
		return job.NewFunc("estimate", func(ctx context.Context) error {
			b := types.NewShardPlanBuilder()
			if err := b.Add(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), []types.JobShardSpec{
				types.NewJobShardSpec(types.SingleShardSpec{}, 0),
			}); err != nil {
				return err
			}
			return c.SetShardSpecs(b.Build())
		})
	}))
	res, err := a.Run(context.Background(), RunOptions{RunID: "estimated"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Plan.TotalShards())

	n, err := a.Catalog().ShardCount(context.Background(), "estimated")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunRequiresStart(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	_, err = a.Run(context.Background(), RunOptions{})
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "ftp"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestBlobBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = storage.BackendBlob
	bucketDir := filepath.Join(cfg.DataDir, "bucket")
	require.NoError(t, os.MkdirAll(bucketDir, 0755))
	cfg.Storage.URL = "file://" + filepath.ToSlash(bucketDir)
	cfg.Plan.Codec = "zstd"
	a := startApp(t, cfg)

	ctx := context.Background()
	res, err := a.Run(ctx, RunOptions{RunID: "blob"})
	require.NoError(t, err)
	assert.Equal(t, "work/blob/shard_specs.json.zst", res.ObjectPath)

	// Blob buckets have no directories, so both prefixes get a marker object.
	objects, err := storage.NewBlobStorage(ctx, cfg.Storage.URL)
	require.NoError(t, err)
	defer objects.Close()
	for _, marker := range []string{"work/" + storage.PrefixMarker, "segments/" + storage.PrefixMarker} {
		ok, err := objects.Exists(ctx, marker)
		require.NoError(t, err)
		assert.True(t, ok, marker)
	}
}
