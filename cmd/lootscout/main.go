// Command lootscout searches the configured retailers once and prints the
// merged listings as a JSON array on stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lootscout/pkg/bootstrap"
	"lootscout/pkg/config"
	"lootscout/pkg/logger"
	"lootscout/pkg/models"
)

func main() {
	query := flag.String("query", "", "search text (required)")
	platform := flag.String("platform", "", "only keep listings whose title mentions this platform, e.g. n64")
	maxResults := flag.Int("max_results", 0, "listings taken per source (default from config, 16)")
	sources := flag.String("sources", "", "comma-separated subset of sources, e.g. dkoldies,vgny")
	configPath := flag.String("config", "./config.yaml", "path to config.yaml (defaults are used when missing)")
	stats := flag.Bool("stats", false, "print a per-source summary table to stderr")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, options{
		Query:      *query,
		Platform:   *platform,
		MaxResults: *maxResults,
		Sources:    splitList(*sources),
		ConfigPath: *configPath,
		Stats:      *stats,
		Debug:      *debug,
	}, os.Stdout, os.Stderr))
}

type options struct {
	Query      string
	Platform   string
	MaxResults int
	Sources    []string
	ConfigPath string
	Stats      bool
	Debug      bool
}

// run returns the process exit code. Only usage errors exit non-zero; a
// failed search still prints an empty array.
func run(ctx context.Context, opts options, stdout, stderr io.Writer) int {
	defer logger.Flush()

	if strings.TrimSpace(opts.Query) == "" {
		fmt.Fprintln(stderr, "usage: lootscout -query <text> [-platform n64] [-max_results 16] [-sources a,b] [-stats]")
		return 2
	}

	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if opts.Debug {
		cfg.Log.Level = "debug"
	}

	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: stderr})
	slog.SetDefault(log)

	products := []models.Product{}

	app, err := bootstrap.New(cfg, log)
	if err != nil {
		log.Error("build pipeline failed", "err", err)
		return writeJSON(stdout, products, log)
	}
	defer app.Close()

	q := models.Query{Text: opts.Query, Platform: opts.Platform, MaxResults: opts.MaxResults}
	found, report, err := app.Search(ctx, q, opts.Sources)
	if err != nil {
		log.Error("search failed", "err", err, "available", strings.Join(app.Aggregator.Sources(), ","))
	} else {
		products = found
	}

	if opts.Stats && err == nil {
		printStats(stderr, report)
	}

	return writeJSON(stdout, products, log)
}

func writeJSON(w io.Writer, products []models.Product, log *slog.Logger) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(products); err != nil {
		log.Error("encode results", "err", err)
		return 1
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
