package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"github.com/mini-rodalies-3d/horarios/internal/config"
	"github.com/mini-rodalies-3d/horarios/internal/db"
	"github.com/mini-rodalies-3d/horarios/internal/handlers"
	"github.com/mini-rodalies-3d/horarios/internal/repository"
)

func main() {
	envDir := flag.String("env-dir", ".", "Directory containing .env and .env.local")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load base .env first, then .env.local (which overrides for local development)
	config.LoadDotEnv(*envDir)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Failed to load timezone: %v", err)
	}

	store, err := db.Open(cfg.DatabaseURL, db.Options{TablePrefix: cfg.TablePrefix})
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Tables exist before the first ingestion so queries return empty results
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure database schema: %v", err)
	}

	scheduleRepo := repository.NewScheduleRepository(store)
	stationHandler := handlers.NewStationHandler(scheduleRepo, loc, cfg.StationsCacheTTL)
	healthHandler := handlers.NewHealthHandler(store)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(stationHandler, healthHandler, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("API server starting on :%s (timezone %s)", cfg.Port, loc)
		log.Println("Endpoints:")
		log.Println("  GET /api/stations")
		log.Println("  GET /api/station/{stop_id}/scheduled")
		log.Println("  GET /health (with database check)")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Goodbye!")
}
