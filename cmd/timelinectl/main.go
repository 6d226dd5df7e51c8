// Command timelinectl computes a reception timeline from a snapshot file
// without starting the service.
//
// Usage:
//
//	timelinectl -snapshot receptions.json -categories
//	timelinectl -snapshot receptions.json -category Proj1 -granularity week
//	timelinectl -snapshot receptions.json -category Proj1 -drill 2024-01
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/calendar"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/coop"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/internal/dataset"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Reception-Timeline-Analytics/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	snapshotPath := flag.String("snapshot", "", "JSON snapshot file (columns object or array of rows)")
	category := flag.String("category", "", "category to chart")
	granularity := flag.String("granularity", "", "week, month or year (default from config)")
	drill := flag.String("drill", "", "bucket key whose row identifiers are printed")
	listCategories := flag.Bool("categories", false, "print the distinct categories and exit")
	flag.Parse()

	if *snapshotPath == "" {
		fmt.Fprintln(os.Stderr, "timelinectl: -snapshot is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, "text"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *snapshotPath, *category, *granularity, *drill, *listCategories); err != nil {
		fmt.Fprintf(os.Stderr, "timelinectl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, path, category, granularity, drill string, listCategories bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	snap, err := dataset.Decode(data)
	if err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", path, err)
	}

	g := calendar.Parse(granularity)
	if granularity == "" {
		g = calendar.Parse(cfg.Analytics.DefaultGranularity)
	}

	session := analytics.NewSession(analytics.SessionConfig{
		Schema: dataset.Schema{
			Category: cfg.Analytics.Columns.Category,
			Date:     cfg.Analytics.Columns.Date,
			RowID:    cfg.Analytics.Columns.RowID,
			Archive:  cfg.Analytics.Columns.Archive,
		},
		IndexChunk:  cfg.Analytics.IndexChunk,
		ScanChunk:   cfg.Analytics.ScanChunk,
		MaxBuckets:  cfg.Analytics.MaxBuckets,
		Granularity: g,
		Locale:      calendar.LocaleFor(cfg.Analytics.Locale),
		// Nothing else runs in this process, so there is no one to yield to.
		Scheduler: coop.Inline{},
	})

	if _, err := session.Load(ctx, snap); err != nil {
		return err
	}

	if listCategories {
		cats, err := session.Categories(ctx)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"categories": cats})
	}

	series, err := session.Select(ctx, category, g)
	if err != nil {
		return err
	}
	if drill == "" {
		return printJSON(series)
	}

	ids, err := session.Drill(ctx, drill)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"key": drill, "rowIds": ids})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
