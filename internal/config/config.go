// Package config provides the configuration of a shard planning run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/arkilian/shardplan/internal/logger"
	"github.com/arkilian/shardplan/internal/plan"
	"github.com/arkilian/shardplan/internal/storage"
	"github.com/arkilian/shardplan/pkg/types"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Partition types.
const (
	PartitionHashed = "hashed"
	PartitionNone   = "none"
)

// Config holds the configuration of an ingestion planning run. It is also the
// collaborator the determination job commits the shard plan into, so it must
// be used through a pointer.
type Config struct {
	// DataDir is the base directory for local files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// WorkingPath is the prefix for intermediate artifacts, relative to the storage root
	WorkingPath string `json:"working_path" yaml:"working_path"`

	// OutputPath is the prefix the ingestion job writes segments to
	OutputPath string `json:"output_path" yaml:"output_path"`

	// Partitions configuration
	Partitions PartitionsConfig `json:"partitions" yaml:"partitions"`

	// Granularity configuration
	Granularity GranularityConfig `json:"granularity" yaml:"granularity"`

	// Input describes the input paths
	Input types.PathSpec `json:"input" yaml:"input"`

	// CombineText packs small text files into larger splits
	CombineText bool `json:"combine_text" yaml:"combine_text"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Plan artifact configuration
	Plan PlanConfig `json:"plan" yaml:"plan"`

	// CatalogPath is the SQLite plan catalog, defaulting to <data_dir>/catalog.db
	CatalogPath string `json:"catalog_path" yaml:"catalog_path"`

	// Log configuration
	Log logger.Config `json:"log" yaml:"log"`

	// MetricsAddr is the address of the metrics endpoint; empty disables it
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`

	mu         sync.Mutex
	shardSpecs *types.ShardPlan
	estimator  Estimator
}

// PartitionsConfig holds the sharding configuration.
type PartitionsConfig struct {
	// Type is hashed or none
	Type string `json:"type" yaml:"type"`

	// NumShards is the fixed number of shards per bucket
	NumShards int `json:"num_shards" yaml:"num_shards"`

	// DeterminePartitions derives shard counts from the input data
	DeterminePartitions bool `json:"determine_partitions" yaml:"determine_partitions"`

	// TargetPartitionSize is the target number of rows per shard when determining
	TargetPartitionSize int64 `json:"target_partition_size" yaml:"target_partition_size"`

	// PartitionDimensions are hashed for routing; empty means all dimensions
	PartitionDimensions []string `json:"partition_dimensions" yaml:"partition_dimensions"`
}

// GranularityConfig holds the time bucketing configuration.
type GranularityConfig struct {
	// Segment is hour, day, week, month or year
	Segment string `json:"segment" yaml:"segment"`

	// Intervals are "start/end" ranges to ingest
	Intervals []string `json:"intervals" yaml:"intervals"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3, blob
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`

	// URL is the gocloud bucket URL (for blob type)
	URL string `json:"url" yaml:"url"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// PlanConfig holds plan artifact configuration.
type PlanConfig struct {
	// Codec is none, snappy or zstd
	Codec string `json:"codec" yaml:"codec"`
}

// DefaultConfig returns the default configuration for local runs.
func DefaultConfig() *Config {
	return &Config{
		DataDir:     "./data/shardplan",
		WorkingPath: "work",
		OutputPath:  "segments",
		Partitions: PartitionsConfig{
			Type:                PartitionHashed,
			NumShards:           1,
			TargetPartitionSize: 5_000_000,
		},
		Granularity: GranularityConfig{
			Segment: string(GranularityDay),
		},
		Storage: StorageConfig{
			Type: storage.BackendLocal,
		},
		Plan: PlanConfig{
			Codec: string(plan.CodecSnappy),
		},
		Log: logger.NewConfig(),
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/shardplan"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = storage.BackendLocal
	}
	if c.Storage.Type == storage.BackendLocal && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
	if c.CatalogPath == "" {
		c.CatalogPath = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.Partitions.Type == "" {
		c.Partitions.Type = PartitionHashed
	}
	if c.Granularity.Segment == "" {
		c.Granularity.Segment = string(GranularityDay)
	}
}

// Validate reports every problem in the configuration.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.DataDir == "" {
		result = multierror.Append(result, fmt.Errorf("data_dir is required"))
	}
	if c.WorkingPath == "" {
		result = multierror.Append(result, fmt.Errorf("working_path is required"))
	}
	if c.OutputPath == "" {
		result = multierror.Append(result, fmt.Errorf("output_path is required"))
	}

	switch c.Partitions.Type {
	case PartitionHashed, PartitionNone:
	default:
		result = multierror.Append(result, fmt.Errorf("invalid partitions.type: %s (must be hashed or none)", c.Partitions.Type))
	}
	if c.Partitions.NumShards < 0 {
		result = multierror.Append(result, fmt.Errorf("partitions.num_shards must not be negative, got %d", c.Partitions.NumShards))
	}
	if c.Partitions.DeterminePartitions && c.Partitions.TargetPartitionSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("partitions.target_partition_size must be positive when determining partitions"))
	}

	if _, err := ParseGranularity(c.Granularity.Segment); err != nil {
		result = multierror.Append(result, fmt.Errorf("granularity.segment: %w", err))
	}
	for _, interval := range c.Granularity.Intervals {
		if _, _, err := ParseInterval(interval); err != nil {
			result = multierror.Append(result, fmt.Errorf("granularity.intervals: %w", err))
		}
	}

	if !c.Input.InputFormat.Valid() {
		result = multierror.Append(result, fmt.Errorf("invalid input.input_format: %s", c.Input.InputFormat))
	}

	switch c.Storage.Type {
	case storage.BackendLocal:
		if c.Storage.Path == "" {
			result = multierror.Append(result, fmt.Errorf("storage.path is required when storage type is local"))
		}
	case storage.BackendS3:
		if c.Storage.S3.Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("s3.bucket is required when storage type is s3"))
		}
	case storage.BackendBlob:
		if c.Storage.URL == "" {
			result = multierror.Append(result, fmt.Errorf("storage.url is required when storage type is blob"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("invalid storage type: %s (must be local, s3, or blob)", c.Storage.Type))
	}

	if _, err := plan.ParseCodec(c.Plan.Codec); err != nil {
		result = multierror.Append(result, fmt.Errorf("plan.codec: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		result = multierror.Append(result, fmt.Errorf("log: %w", err))
	}

	return result.ErrorOrNil()
}

// StorageOptions returns the options opening the configured object store.
func (c *Config) StorageOptions() storage.Options {
	s3 := storage.DefaultS3Config()
	if c.Storage.S3.Region != "" {
		s3.Region = c.Storage.S3.Region
	}
	if c.Storage.S3.Endpoint != "" {
		s3.Endpoint = c.Storage.S3.Endpoint
		s3.UsePathStyle = true
	}
	return storage.Options{
		Backend: c.Storage.Type,
		Path:    c.Storage.Path,
		Bucket:  c.Storage.S3.Bucket,
		S3:      s3,
		URL:     c.Storage.URL,
	}
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overrides cfg from environment variables with the SHARDPLAN_
// prefix. List values are comma separated.
func LoadFromEnv(cfg *Config) error {
	var result *multierror.Error

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	list := func(key string, dst *[]string) {
		if v := os.Getenv(key); v != "" {
			*dst = splitList(v)
		}
	}

	str("SHARDPLAN_DATA_DIR", &cfg.DataDir)
	str("SHARDPLAN_WORKING_PATH", &cfg.WorkingPath)
	str("SHARDPLAN_OUTPUT_PATH", &cfg.OutputPath)

	// Partitions configuration
	str("SHARDPLAN_PARTITIONS_TYPE", &cfg.Partitions.Type)
	integer("SHARDPLAN_NUM_SHARDS", &cfg.Partitions.NumShards)
	boolean("SHARDPLAN_DETERMINE_PARTITIONS", &cfg.Partitions.DeterminePartitions)
	if v := os.Getenv("SHARDPLAN_TARGET_PARTITION_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("SHARDPLAN_TARGET_PARTITION_SIZE: %w", err))
		} else {
			cfg.Partitions.TargetPartitionSize = n
		}
	}
	list("SHARDPLAN_PARTITION_DIMENSIONS", &cfg.Partitions.PartitionDimensions)

	// Granularity configuration
	str("SHARDPLAN_SEGMENT_GRANULARITY", &cfg.Granularity.Segment)
	list("SHARDPLAN_INTERVALS", &cfg.Granularity.Intervals)

	// Input configuration
	str("SHARDPLAN_INPUT_PATHS", &cfg.Input.Paths)
	if v := os.Getenv("SHARDPLAN_INPUT_FORMAT"); v != "" {
		cfg.Input.InputFormat = types.InputFormat(v)
	}
	boolean("SHARDPLAN_COMBINE_TEXT", &cfg.CombineText)

	// Storage configuration
	str("SHARDPLAN_STORAGE_TYPE", &cfg.Storage.Type)
	str("SHARDPLAN_STORAGE_PATH", &cfg.Storage.Path)
	str("SHARDPLAN_STORAGE_URL", &cfg.Storage.URL)
	str("SHARDPLAN_S3_BUCKET", &cfg.Storage.S3.Bucket)
	str("SHARDPLAN_S3_REGION", &cfg.Storage.S3.Region)
	str("SHARDPLAN_S3_ENDPOINT", &cfg.Storage.S3.Endpoint)

	str("SHARDPLAN_PLAN_CODEC", &cfg.Plan.Codec)
	str("SHARDPLAN_CATALOG_PATH", &cfg.CatalogPath)
	str("SHARDPLAN_LOG_FORMAT", &cfg.Log.Format)
	str("SHARDPLAN_LOG_LEVEL", &cfg.Log.Level)
	str("SHARDPLAN_METRICS_ADDR", &cfg.MetricsAddr)

	return result.ErrorOrNil()
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EnsureDirectories creates the local directories the run needs.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == storage.BackendLocal {
		dirs = append(dirs, c.Storage.Path)
	}
	if c.CatalogPath != "" && c.CatalogPath != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.CatalogPath))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
