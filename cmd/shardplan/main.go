// Package main implements the shardplan binary. It decides the shard plan of
// a time-partitioned ingestion job, persists it next to the job's working
// files and records it in the plan catalog.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkilian/shardplan/internal/app"
	"github.com/arkilian/shardplan/internal/config"
	"github.com/arkilian/shardplan/internal/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configFile  string
		envFile     string
		dataDir     string
		runID       string
		shards      int
		determine   bool
		parallel    int
		dryRun      bool
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&envFile, "env-file", "", "Load environment variables from this file before reading SHARDPLAN_*")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for local files")
	flag.StringVar(&runID, "run-id", "", "Run identifier (default: random UUID)")
	flag.IntVar(&shards, "shards", -1, "Fixed number of shards per time bucket (overrides config)")
	flag.BoolVar(&determine, "determine", false, "Determine shard counts from the input data (requires an estimator linked in by the embedding program)")
	flag.IntVar(&parallel, "parallel", 1, "Number of goroutines assigning bucket specs")
	flag.BoolVar(&dryRun, "dry-run", false, "Print the plan without persisting or recording it")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() { usage(os.Stderr) }

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("shardplan version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := loadConfig(configFile, envFile, dataDir, shards, determine)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(os.Stderr, cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	application, err := app.New(cfg, zlog)
	if err != nil {
		zlog.Fatal("Failed to create application", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := application.Start(ctx); err != nil {
		zlog.Fatal("Failed to start application", zap.Error(err))
	}

	res, runErr := application.Run(ctx, app.RunOptions{
		RunID:       runID,
		Parallelism: parallel,
		DryRun:      dryRun,
	})

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Stop(stopCtx); err != nil {
		zlog.Warn("Shutdown error", zap.Error(err))
	}

	if runErr != nil {
		zlog.Error("Planning run failed", zap.Error(runErr))
		zlog.Sync()
		os.Exit(1)
	}

	printSummary(res, dryRun)
}

// usage prints the help message.
func usage(w io.Writer) {
	fmt.Fprintf(w, "shardplan - shard planning for time-partitioned ingestion\n\n")
	fmt.Fprintf(w, "Usage: shardplan [options]\n\n")
	fmt.Fprintf(w, "Options:\n")
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  shardplan --config /etc/shardplan/job.yaml\n")
	fmt.Fprintf(w, "  shardplan --config job.yaml --shards 8 --dry-run\n")
	fmt.Fprintf(w, "\nEnvironment Variables:\n")
	fmt.Fprintf(w, "  SHARDPLAN_DATA_DIR          Base directory for local files\n")
	fmt.Fprintf(w, "  SHARDPLAN_NUM_SHARDS        Shards per time bucket\n")
	fmt.Fprintf(w, "  SHARDPLAN_INTERVALS         Comma separated start/end intervals\n")
	fmt.Fprintf(w, "  SHARDPLAN_INPUT_PATHS       Input path expression\n")
	fmt.Fprintf(w, "  SHARDPLAN_STORAGE_TYPE      Storage type (local, s3, blob)\n")
	fmt.Fprintf(w, "\nThis binary ships without a partition estimator, so --determine and\n")
	fmt.Fprintf(w, "determine_partitions fail with NO_ESTIMATOR. Programs embedding internal/app\n")
	fmt.Fprintf(w, "register one with config.Config.SetEstimator.\n")
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, envFile, dataDir string, shards int, determine bool) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	// Start with defaults or load from file
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	if err := config.LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	// Apply command line flags (highest priority)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if shards >= 0 {
		cfg.Partitions.NumShards = shards
	}
	if determine {
		cfg.Partitions.DeterminePartitions = true
	}

	return cfg, nil
}

// printSummary prints the decided plan.
func printSummary(res *app.Result, dryRun bool) {
	fmt.Printf("Run:     %s\n", res.RunID)
	fmt.Printf("Buckets: %d\n", res.Plan.Len())
	fmt.Printf("Shards:  %d\n", res.Plan.TotalShards())
	fmt.Printf("Inputs:  %d\n", len(res.Inputs))
	if dryRun {
		fmt.Printf("Plan:    not persisted (dry run)\n")
	} else {
		fmt.Printf("Plan:    %s\n", res.ObjectPath)
	}
	fmt.Printf("Took:    %v\n", res.Duration)
	fmt.Println()

	for _, start := range res.Plan.Buckets() {
		specs, _ := res.Plan.Get(start)
		fmt.Printf("%s\n", start.Format(time.RFC3339))
		for _, s := range specs {
			fmt.Printf("  %v\n", s)
		}
	}
}
