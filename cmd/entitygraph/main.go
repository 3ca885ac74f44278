package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"

	"entitygraph/config"
	"entitygraph/internal/logger"
	"entitygraph/internal/metrics"
	"entitygraph/internal/pipeline"
)

const defaultConfigName = "config.yml"

var (
	app        = kingpin.New("entitygraph", "Resolve Wintap telemetry into per-partition entity tables.")
	configFlag = app.Flag("config", "Path to the YAML config file.").Short('c').String()

	runCmd   = app.Command("run", "Build and write entity tables for every partition.")
	runDays  = runCmd.Flag("day", "Only process this partition (20240101 or dayPK=20240101/hour=07). Repeatable.").Strings()
	runForce = runCmd.Flag("force", "Rebuild partitions the ledger marks completed.").Bool()

	partitionsCmd = app.Command("partitions", "List partitions available in the input.")

	tablesCmd = app.Command("tables", "Print the schema of every output table.")

	ledgerCmd   = app.Command("ledger", "Show recently completed partitions.")
	ledgerLimit = ledgerCmd.Flag("limit", "Number of entries to show.").Default("20").Int64()
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		if _, err := os.Stat(configArg); err == nil {
			return configArg
		}
		log.Printf("Warning: config file not found at %s, trying default locations", configArg)
	}

	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}

	exePath, err := os.Executable()
	if err == nil {
		path := filepath.Join(filepath.Dir(exePath), defaultConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadConfig falls back to defaults when no config file exists.
func loadConfig() (*config.Config, string, error) {
	path := findConfigFile(*configFlag)
	cfg := &config.Config{}
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, path, err
		}
		cfg = loaded
	}
	config.ApplyDefaults(cfg)
	return cfg, path, nil
}

func main() {
	app.HelpFlag.Short('h')
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, path, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	lc := cfg.EntityGraph.Logging
	if err := logger.Init(lc.Enabled, lc.Level, lc.File, lc.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	if path != "" {
		logger.Infof("Config loaded from: %s", path)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch command {
	case runCmd.FullCommand():
		os.Exit(runPipeline(ctx, cfg))
	case partitionsCmd.FullCommand():
		os.Exit(listPartitions(ctx, cfg))
	case tablesCmd.FullCommand():
		printSchemas(os.Stdout, pipeline.Schemas())
	case ledgerCmd.FullCommand():
		os.Exit(showLedger(ctx, cfg, *ledgerLimit))
	}
}

func runPipeline(ctx context.Context, cfg *config.Config) int {
	c := cfg.EntityGraph
	runID := uuid.New().String()
	log := logger.WithFields(map[string]interface{}{"run_id": runID})
	log.Infof("EntityGraph starting")

	source, closeSource, err := newSource(c.Input)
	if err != nil {
		log.Errorf("Failed to create source: %v", err)
		fmt.Fprintf(os.Stderr, "failed to create source: %v\n", err)
		return 1
	}
	defer closeSource()

	parts, err := source.Partitions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list partitions: %v\n", err)
		return 1
	}
	parts, err = selectPartitions(parts, *runDays)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	if len(parts) == 0 {
		log.Warnf("No partitions to process")
		return 0
	}

	opts, err := buildOptions(c)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid pipeline config: %v\n", err)
		return 2
	}

	writer, err := newWriter(c.Output)
	if err != nil {
		log.Errorf("Failed to create writer: %v", err)
		fmt.Fprintf(os.Stderr, "failed to create writer: %v\n", err)
		return 1
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Errorf("Error closing writer: %v", err)
		}
	}()

	runner := &pipeline.Runner{
		Source:  source,
		Writer:  writer,
		Options: opts,
		Workers: c.Pipeline.Workers,
		Force:   *runForce,
		RunID:   runID,
	}
	if c.Ledger.Enabled {
		store, err := newLedger(c.Ledger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open ledger: %v\n", err)
			return 1
		}
		defer store.Close()
		runner.Ledger = store
	}

	var srv *metrics.Server
	if c.Metrics.Enabled {
		srv = metrics.Serve(c.Metrics.Addr)
		log.Infof("Metrics listening on %s", c.Metrics.Addr)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Metrics shutdown: %v", err)
		}
	}()

	start := time.Now()
	report, err := runner.Run(ctx, parts)
	if report != nil {
		printReport(os.Stdout, report, time.Since(start))
	}
	if err != nil {
		log.Errorf("Run finished with failures: %v", err)
		return 1
	}
	log.Infof("EntityGraph finished in %s", time.Since(start).Round(time.Millisecond))
	return 0
}

func listPartitions(ctx context.Context, cfg *config.Config) int {
	source, closeSource, err := newSource(cfg.EntityGraph.Input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create source: %v\n", err)
		return 1
	}
	defer closeSource()

	parts, err := source.Partitions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list partitions: %v\n", err)
		return 1
	}
	for _, p := range parts {
		fmt.Println(p.String())
	}
	return 0
}

func showLedger(ctx context.Context, cfg *config.Config, limit int64) int {
	store, err := newLedger(cfg.EntityGraph.Ledger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open ledger: %v\n", err)
		return 1
	}
	defer store.Close()

	entries, err := store.Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read ledger: %v\n", err)
		return 1
	}
	printLedger(os.Stdout, entries)
	return 0
}
