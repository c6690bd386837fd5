// Package catalog keeps a SQLite ledger of committed shard plans so the shard
// owning a (bucket, partition) pair can be looked up after the run.
package catalog

// CreatePlanRunsTableSQL creates the table of recorded runs.
const CreatePlanRunsTableSQL = `
CREATE TABLE IF NOT EXISTS plan_runs (
    run_id TEXT PRIMARY KEY,
    object_path TEXT NOT NULL,
    bucket_count INTEGER NOT NULL,
    shard_count INTEGER NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreatePlanShardsTableSQL creates the table of shards per run. bucket_start
// is in Unix milliseconds.
const CreatePlanShardsTableSQL = `
CREATE TABLE IF NOT EXISTS plan_shards (
    run_id TEXT NOT NULL,
    bucket_start INTEGER NOT NULL,
    partition_num INTEGER NOT NULL,
    shard_num INTEGER NOT NULL,
    kind TEXT NOT NULL,
    spec_json TEXT NOT NULL,
    PRIMARY KEY (run_id, bucket_start, partition_num),
    FOREIGN KEY (run_id) REFERENCES plan_runs(run_id)
)`

// CreateIndexesSQL creates the lookup indexes.
var CreateIndexesSQL = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_plan_shards_num ON plan_shards(run_id, shard_num)`,
	`CREATE INDEX IF NOT EXISTS idx_plan_runs_created ON plan_runs(created_at)`,
}
