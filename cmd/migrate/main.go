// Command migrate bulk-copies tables from a MySQL-family source into a
// Postgres-family target, preparing the target for a change-data-capture
// pipeline. It exits 0 only when every requested table was fully loaded,
// finalized, and (when -verify is set) verified.
//
// Usage:
//
//	migrate -db reports -config conf/databases.json
//	migrate -db reports -tables T_DEAL,T_USERS -chunk-concurrency 8
//	migrate -db reports -verify -verify-checksum
//
// Connection strings never appear on the command line; the registry file
// names environment variables and the migrator resolves them at startup,
// loading a .env file first when one exists.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"migrator/internal/config"
	"migrator/internal/metrics"
	"migrator/internal/metrics/prompush"
	"migrator/internal/migrate"
	"migrator/internal/report"
	"migrator/internal/source"
	"migrator/internal/target"
	"migrator/internal/verify"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		dbKey            = flag.String("db", "", "database registry key (required)")
		tableList        = flag.String("tables", "", "comma-separated table list; empty = discover from registry entry")
		configPath       = flag.String("config", "conf/databases.json", "path to the database registry file")
		tableConcurrency = flag.Int("table-concurrency", config.DefaultTableConcurrency, "max concurrently active tables")
		chunkConcurrency = flag.Int("chunk-concurrency", config.DefaultChunkConcurrency, "max concurrently running chunk tasks")
		batchSize        = flag.Int("batch-size", config.DefaultBatchSize, "rows per COPY batch")
		chunkThreshold   = flag.Int64("chunk-threshold", config.DefaultChunkThreshold, "estimated row count above which a table is chunked by year")
		doVerify         = flag.Bool("verify", false, "compare source and target row counts after the run")
		doChecksum       = flag.Bool("verify-checksum", false, "also compare primary key checksums (implies -verify)")
		metricsBackend   = flag.String("metrics-backend", "none", "metrics backend: none or prompush")
		pushgatewayURL   = flag.String("pushgateway-url", "", "Prometheus Pushgateway URL for -metrics-backend prompush")
	)
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("migrate ")

	// Local development keeps DSNs in a .env file; in production the
	// variables come from the real environment and no file exists.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	req := config.Request{
		Database:         *dbKey,
		TableConcurrency: *tableConcurrency,
		ChunkConcurrency: *chunkConcurrency,
		BatchSize:        *batchSize,
		ChunkThreshold:   *chunkThreshold,
	}
	if *tableList != "" {
		for _, t := range strings.Split(*tableList, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Tables = append(req.Tables, t)
			}
		}
	}
	if err := req.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid request: %v\n", err)
		flag.Usage()
		return 2
	}

	registry, err := config.LoadRegistry(*configPath)
	if err != nil {
		log.Printf("load registry: %v", err)
		return 2
	}
	dbCfg, err := registry.Lookup(req.Database)
	if err != nil {
		log.Printf("%v", err)
		return 2
	}

	switch *metricsBackend {
	case "none", "":
	case "prompush":
		backend, err := prompush.NewBackend(req.Database, *pushgatewayURL)
		if err != nil {
			log.Printf("metrics: %v", err)
			return 2
		}
		metrics.SetBackend(backend)
	default:
		log.Printf("unknown metrics backend %q", *metricsBackend)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := migrateDatabase(ctx, req, dbCfg, *doVerify || *doChecksum, *doChecksum)
	if err != nil {
		log.Printf("fatal: %v", err)
		code = 1
	}
	if err := metrics.Flush(); err != nil {
		log.Printf("metrics flush: %v", err)
	}
	return code
}

// migrateDatabase connects both sides, runs the orchestrator, optionally
// verifies, and prints the report. The returned error is fatal-class only;
// partial failures are reflected in the exit code instead.
func migrateDatabase(ctx context.Context, req config.Request, dbCfg config.Database, doVerify, doChecksum bool) (int, error) {
	srcDSN, err := dbCfg.SourceDSN()
	if err != nil {
		return 1, err
	}
	tgtDSN, err := dbCfg.TargetDSN()
	if err != nil {
		return 1, err
	}

	src, closeSrc, err := source.Connect(ctx, source.Config{
		DSN:           srcDSN,
		TablePattern:  dbCfg.TablePattern,
		IncludeTables: dbCfg.IncludeTables,
	})
	if err != nil {
		return 1, err
	}
	defer closeSrc()

	tgt, closeTgt, err := target.Connect(ctx, target.Config{
		DSN:      tgtDSN,
		MaxConns: int32(req.MaxLoadTasks()) + 1,
	})
	if err != nil {
		return 1, err
	}
	defer closeTgt()

	started := time.Now()
	log.Printf("starting: database=%s tables=%d concurrency=%dx%d batch=%d",
		req.Database, len(req.Tables), req.TableConcurrency, req.ChunkConcurrency, req.BatchSize)

	outcomes, err := migrate.New(src, tgt, req, dbCfg).Run(ctx)
	if err != nil {
		return 1, err
	}

	var issues []verify.Issue
	if doVerify {
		issues, err = verify.Tables(ctx, src, tgt, outcomes, doChecksum)
		if err != nil {
			log.Printf("verification aborted: %v", err)
			issues = append(issues, verify.Issue{Table: "*", Detail: fmt.Sprintf("verification aborted: %v", err)})
		}
	}

	report.Write(os.Stdout, report.Summary{
		Database: req.Database,
		Started:  started,
		Duration: time.Since(started),
		Outcomes: outcomes,
		Issues:   issues,
		Verified: doVerify,
	})
	return report.ExitCode(outcomes, issues), nil
}
