package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mini-rodalies-3d/horarios/internal/config"
	"github.com/mini-rodalies-3d/horarios/internal/db"
	"github.com/mini-rodalies-3d/horarios/internal/static"
	"github.com/mini-rodalies-3d/horarios/internal/static/gtfs"
)

func main() {
	// Command line flags
	once := flag.Bool("once", false, "Run a single ingestion and exit")
	force := flag.Bool("force", false, "Ingest even if the schedule is fresh")
	file := flag.String("file", "", "Load the feed from a local zip instead of GTFS_STATIC_URL (implies -once)")
	envDir := flag.String("env-dir", ".", "Directory containing .env and .env.local")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("Starting schedule ingester...")

	config.LoadDotEnv(*envDir)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded: interval=%v, refresh_days=%d, retries=%d",
		cfg.IngestInterval, cfg.StaticRefreshDays, cfg.FetchRetries)

	store, err := db.Open(cfg.DatabaseURL, db.Options{TablePrefix: cfg.TablePrefix})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	var source static.Downloader
	url := cfg.GTFSStaticURL
	if *file != "" {
		source = gtfs.FileSource{Path: *file}
		url = *file
		*once = true
		*force = true
	} else {
		source = gtfs.NewFetcher(&http.Client{Timeout: cfg.FetchTimeout}, gtfs.FetchOptions{
			FallbackURL: cfg.GTFSFallbackURL,
			MaxRetries:  uint64(cfg.FetchRetries),
		})
	}
	pipeline := static.NewPipeline(store, source, url)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		report, err := ingestOnce(ctx, store, pipeline, cfg, *force)
		code := 0
		switch {
		case err != nil:
			code = 1
		case report != nil && report.Status() != static.StatusComplete:
			code = 2
		}
		store.Close()
		os.Exit(code)
	}

	// Initial run immediately
	ingestOnce(ctx, store, pipeline, cfg, *force)

	ticker := time.NewTicker(cfg.IngestInterval)
	defer ticker.Stop()

	log.Printf("Ingester running (check every %v, refresh after %d days)", cfg.IngestInterval, cfg.StaticRefreshDays)
	for {
		select {
		case <-ticker.C:
			ingestOnce(ctx, store, pipeline, cfg, false)
		case <-ctx.Done():
			log.Println("Shutting down...")
			log.Println("Goodbye!")
			return
		}
	}
}

// ingestOnce runs the pipeline (always when force is set, otherwise only if
// the schedule is stale) and prunes old run records.
func ingestOnce(ctx context.Context, store *db.Store, pipeline *static.Pipeline, cfg *config.Config, force bool) (*static.Report, error) {
	var report *static.Report
	var err error
	if force {
		report, err = pipeline.Run(ctx)
	} else {
		report, err = static.RefreshIfStale(ctx, store, pipeline, cfg.StaticRefreshDays)
	}
	if err != nil {
		log.Printf("Ingestion error: %v", err)
	} else if report != nil && report.Status() != static.StatusComplete {
		log.Printf("Warning: ingestion %s: %v", report.Status(), report.Err())
	}

	if _, cerr := store.CleanupRuns(ctx, cfg.RunRetention()); cerr != nil {
		log.Printf("Cleanup error: %v", cerr)
	}
	return report, err
}
