package catalog

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arkilian/shardplan/internal/errors"
	"github.com/arkilian/shardplan/internal/partition"
	"github.com/arkilian/shardplan/pkg/types"
	_ "github.com/mattn/go-sqlite3"
)

// RunRecord describes one recorded planning run.
type RunRecord struct {
	RunID       string
	ObjectPath  string
	BucketCount int
	ShardCount  int
	CreatedAt   time.Time
}

// SQLiteCatalog stores plans in a SQLite database.
type SQLiteCatalog struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex // Serializes writers
}

// NewCatalog opens (and creates if needed) the catalog at dbPath.
// Use ":memory:" for a throwaway catalog.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	c := &SQLiteCatalog{db: db, dbPath: dbPath}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}
	return c, nil
}

func (c *SQLiteCatalog) initSchema() error {
	stmts := append([]string{CreatePlanRunsTableSQL, CreatePlanShardsTableSQL}, CreateIndexesSQL...)
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// RecordPlan stores every shard of plan under runID in one transaction.
// Recording the same run twice is an error.
func (c *SQLiteCatalog) RecordPlan(ctx context.Context, runID string, plan *types.ShardPlan, objectPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewCatalogError(errors.CodeWriteFailed, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plan_runs (run_id, object_path, bucket_count, shard_count, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		runID, objectPath, plan.Len(), plan.TotalShards(), time.Now().UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return errors.NewCatalogError(errors.CodeDuplicateRun,
				fmt.Sprintf("run %s already recorded", runID), err)
		}
		return errors.NewCatalogError(errors.CodeWriteFailed, "failed to insert run", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO plan_shards (run_id, bucket_start, partition_num, shard_num, kind, spec_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.NewCatalogError(errors.CodeWriteFailed, "failed to prepare shard insert", err)
	}
	defer stmt.Close()

	var insertErr error
	plan.Ascend(func(start time.Time, specs []types.JobShardSpec) bool {
		for _, s := range specs {
			specJSON, err := partition.MarshalShardSpec(s.Actual)
			if err != nil {
				insertErr = err
				return false
			}
			if _, err := stmt.ExecContext(ctx, runID, start.UnixMilli(), s.Actual.PartitionNum(),
				s.ShardNum, string(s.Actual.Kind()), string(specJSON)); err != nil {
				insertErr = err
				return false
			}
		}
		return true
	})
	if insertErr != nil {
		return errors.NewCatalogError(errors.CodeWriteFailed, "failed to insert shards", insertErr)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewCatalogError(errors.CodeWriteFailed, "failed to commit plan", err)
	}
	return nil
}

// GetRun returns the record of runID.
func (c *SQLiteCatalog) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT run_id, object_path, bucket_count, shard_count, created_at
		FROM plan_runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewCatalogError(errors.CodeRunNotFound, fmt.Sprintf("run %s not found", runID), err)
	}
	return rec, err
}

// LatestRun returns the most recently recorded run.
func (c *SQLiteCatalog) LatestRun(ctx context.Context) (*RunRecord, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT run_id, object_path, bucket_count, shard_count, created_at
		FROM plan_runs ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	rec, err := scanRun(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewCatalogError(errors.CodeRunNotFound, "no runs recorded", err)
	}
	return rec, err
}

// LookupShard returns the shard at partitionNum of the bucket starting at
// bucketStart in runID.
func (c *SQLiteCatalog) LookupShard(ctx context.Context, runID string, bucketStart time.Time, partitionNum int) (types.JobShardSpec, error) {
	var shardNum int
	var specJSON string
	err := c.db.QueryRowContext(ctx, `
		SELECT shard_num, spec_json FROM plan_shards
		WHERE run_id = ? AND bucket_start = ? AND partition_num = ?`,
		runID, bucketStart.UnixMilli(), partitionNum).Scan(&shardNum, &specJSON)
	if stderrors.Is(err, sql.ErrNoRows) {
		return types.JobShardSpec{}, errors.NewCatalogError(errors.CodeShardNotFound,
			fmt.Sprintf("no shard %d for bucket %s in run %s",
				partitionNum, bucketStart.UTC().Format(time.RFC3339), runID), err)
	}
	if err != nil {
		return types.JobShardSpec{}, fmt.Errorf("catalog: lookup shard: %w", err)
	}

	spec, err := partition.UnmarshalShardSpec([]byte(specJSON))
	if err != nil {
		return types.JobShardSpec{}, errors.NewCatalogError(errors.CodeCorruptEntry, "invalid stored shard spec", err)
	}
	return types.NewJobShardSpec(spec, shardNum), nil
}

// ShardCount returns the number of shards recorded for runID.
func (c *SQLiteCatalog) ShardCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM plan_shards WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("catalog: count shards: %w", err)
	}
	return n, nil
}

// LoadPlan rebuilds the plan recorded for runID.
func (c *SQLiteCatalog) LoadPlan(ctx context.Context, runID string) (*types.ShardPlan, error) {
	if _, err := c.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT bucket_start, shard_num, spec_json FROM plan_shards
		WHERE run_id = ? ORDER BY bucket_start, partition_num`, runID)
	if err != nil {
		return nil, fmt.Errorf("catalog: load plan: %w", err)
	}
	defer rows.Close()

	builder := types.NewShardPlanBuilder()
	var (
		current int64
		specs   []types.JobShardSpec
		started bool
	)
	flush := func() error {
		if !started {
			return nil
		}
		return builder.Add(time.UnixMilli(current), specs)
	}

	for rows.Next() {
		var start int64
		var shardNum int
		var specJSON string
		if err := rows.Scan(&start, &shardNum, &specJSON); err != nil {
			return nil, fmt.Errorf("catalog: scan shard: %w", err)
		}
		if started && start != current {
			if err := flush(); err != nil {
				return nil, errors.NewCatalogError(errors.CodeCorruptEntry, "invalid stored plan", err)
			}
			specs = nil
		}
		spec, err := partition.UnmarshalShardSpec([]byte(specJSON))
		if err != nil {
			return nil, errors.NewCatalogError(errors.CodeCorruptEntry, "invalid stored shard spec", err)
		}
		current, started = start, true
		specs = append(specs, types.NewJobShardSpec(spec, shardNum))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: load plan: %w", err)
	}
	if err := flush(); err != nil {
		return nil, errors.NewCatalogError(errors.CodeCorruptEntry, "invalid stored plan", err)
	}
	return builder.Build(), nil
}

// Close closes the database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var rec RunRecord
	var createdAt int64
	if err := s.Scan(&rec.RunID, &rec.ObjectPath, &rec.BucketCount, &rec.ShardCount, &createdAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
