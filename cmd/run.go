package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/askern/mapleads/internal/api"
	"github.com/askern/mapleads/internal/classify"
	"github.com/askern/mapleads/internal/config"
	"github.com/askern/mapleads/internal/crawlstate"
	"github.com/askern/mapleads/internal/decode"
	"github.com/askern/mapleads/internal/engine"
	"github.com/askern/mapleads/internal/fetcher"
	"github.com/askern/mapleads/internal/logging"
	"github.com/askern/mapleads/internal/metrics"
	"github.com/askern/mapleads/internal/normalize"
	"github.com/askern/mapleads/internal/resolve"
	"github.com/askern/mapleads/internal/store"
	"github.com/askern/mapleads/internal/worker"
)

func newRunCmd() *cobra.Command {
	var (
		inputPath  string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a stream of scraped business records.",
		Long: `run reads business records as JSON lines from the input (default stdin),
deduplicates them, harvests business-role emails from each accepted
record's website, and writes the accepted collection as JSON to the
output (default stdout). With db.dsn configured, records and the crawl
snapshot are also persisted to Postgres.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEngine(cmd.Context(), inputPath, outputPath)
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "-", "JSONL records input file, - for stdin")
	cmd.Flags().StringVar(&outputPath, "output", "-", "JSON output file, - for stdout")
	return cmd
}

func runEngine(ctx context.Context, inputPath, outputPath string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	metrics.Init()

	norm := normalize.Normalizer{
		PhoneNationalLength: cfg.Resolver.PhoneNationalLength,
	}
	registry := resolve.NewRegistry(norm, resolve.Config{
		SimilarityThreshold: cfg.Resolver.SimilarityThreshold,
		MinPhoneDigits:      cfg.Resolver.MinPhoneDigits,
		NameWeight:          cfg.Resolver.NameWeight,
		AddressWeight:       cfg.Resolver.AddressWeight,
	}, logger)
	tracker := crawlstate.New(crawlstate.Config{
		Interval:        cfg.PerDomainInterval(),
		RobotsTimeout:   cfg.RobotsTimeout(),
		UserAgent:       cfg.Crawl.UserAgent,
		ContactKeywords: cfg.Crawl.ContactKeywords,
	}, logger)
	client := fetcher.New(fetcher.Config{
		UserAgent: cfg.Crawl.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	classifier := classify.New(classify.Config{
		RolePrefixes:    cfg.Classifier.RolePrefixes,
		BlockedDomains:  cfg.Classifier.BlockedDomains,
		IncludePersonal: cfg.Classifier.IncludePersonal,
	})
	pool := worker.New(registry, tracker, client, decode.New(), classifier, worker.Config{
		Workers:         cfg.Workers.Count,
		MaxContactPages: cfg.Crawl.MaxContactPages,
		FetchTimeout:    cfg.FetchTimeout(),
	}, logger)

	var db *store.Store
	if cfg.DB.DSN != "" {
		db, err = store.New(ctx, store.Config{
			DSN:          cfg.DB.DSN,
			RecordsTable: cfg.DB.RecordsTable,
			CrawlTable:   cfg.DB.CrawlTable,
		})
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer db.Close()

		snapshot, err := db.LoadSnapshot(ctx)
		if err != nil {
			logger.Warn("load crawl snapshot failed; starting fresh", zap.Error(err))
		} else if len(snapshot) > 0 {
			tracker.Restore(snapshot)
			logger.Info("restored crawl snapshot", zap.Int("domains", len(snapshot)))
		}
	}

	if cfg.Server.Enabled {
		srv := api.NewServer(registry, tracker, logger)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			logger.Info("status server listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(addr); err != nil {
				logger.Error("status server stopped", zap.Error(err))
			}
		}()
	}

	records := make(chan engine.BusinessRecord, cfg.Workers.Count)
	readErr := make(chan error, 1)
	go func() {
		defer close(records)
		readErr <- readRecords(ctx, inputPath, records, logger)
	}()

	pool.Run(ctx, records)
	if err := <-readErr; err != nil {
		return err
	}

	accepted := registry.Records()
	logger.Info("run complete",
		zap.Int("accepted", len(accepted)),
		zap.Int("domains_crawled", len(tracker.Snapshot())),
	)

	if db != nil {
		if err := db.SaveRecords(ctx, accepted); err != nil {
			return fmt.Errorf("save records: %w", err)
		}
		if err := db.SaveSnapshot(ctx, tracker.Snapshot()); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	return writeRecords(outputPath, accepted)
}

// readRecords streams JSONL business records into the channel. A malformed
// line is logged and skipped; it never aborts the run.
func readRecords(ctx context.Context, path string, out chan<- engine.BusinessRecord, logger *zap.Logger) error {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return nil
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec engine.BusinessRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			logger.Warn("skipping malformed record", zap.Int("line", line), zap.Error(err))
			continue
		}
		select {
		case out <- rec:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func writeRecords(path string, records []engine.BusinessRecord) error {
	var w io.Writer = os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return nil
}
