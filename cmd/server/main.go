/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the delivery scheduling server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (defaults, YAML, .env, environment)
  3. Build the zap logger
  4. Open the store (memory, SQLite or MongoDB)
  5. Seed weekly capacity defaults if the store has none
  6. Create the scheduling service, API handler and router
  7. Start the capacity sweeper
  8. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config path (default: config.yaml, optional)
  -port    HTTP server port (overrides config)
  -driver  Storage driver: memory, sqlite, mongo (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the capacity sweeper
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/deliveries.db"

  # Run against MongoDB
  MONGODB_URI=mongodb://localhost:27017 ./server -driver=mongo

  # Run on different port with everything in memory
  ./server -port=3000 -driver=memory

SEE ALSO:
  - config/config.go: Configuration sources and keys
  - api/server.go: Router configuration
  - api/scheduler.go: Capacity sweeper
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mealroute/delivery-engine/api"
	"github.com/mealroute/delivery-engine/calendar"
	"github.com/mealroute/delivery-engine/capacity"
	"github.com/mealroute/delivery-engine/config"
	"github.com/mealroute/delivery-engine/logger"
	"github.com/mealroute/delivery-engine/scheduling"
	"github.com/mealroute/delivery-engine/store/memory"
	mongostore "github.com/mealroute/delivery-engine/store/mongo"
	"github.com/mealroute/delivery-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "config.yaml", "YAML config path")
	port := flag.Int("port", 0, "HTTP server port")
	driver := flag.String("driver", "", "Storage driver (memory, sqlite, mongo)")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *driver != "" {
		cfg.Database.Driver = *driver
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	// Initialize store
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}
	defer closeStore()

	if err := seedWeeklyDefaults(ctx, store, cfg.Capacity.WeeklyDefaults, log); err != nil {
		return err
	}

	nearRatio, err := cfg.NearRatio()
	if err != nil {
		return err
	}
	expander := calendar.NewExpander()
	if cfg.CacheTTL > 0 {
		expander.Cache = calendar.NewExpansionCache(cfg.CacheTTL, nil)
	}

	svc := scheduling.NewService(store, scheduling.Options{
		Expander:  expander,
		NearRatio: nearRatio,
		Logger:    log.Named("scheduling"),
	})

	// Initialize handler and router
	handler := api.NewHandler(svc, log.Named("api"))
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:      cfg.CORSOrigins,
		RateLimit:        cfg.RateLimit,
		DisableScenarios: cfg.IsProduction(),
	})

	sweeper := api.NewCapacitySweeper(svc, log.Named("sweeper"), cfg.Sweep.Cron, cfg.Sweep.HorizonDays)
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("driver", cfg.Database.Driver),
			zap.String("env", cfg.Env),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

// openStore returns the configured store and a function that releases it.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (scheduling.Store, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil

	case config.DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.Database.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		store := mongostore.New(client, cfg.Database.MongoDatabase)
		if err := store.EnsureIndexes(ctx); err != nil {
			client.Disconnect(ctx)
			return nil, nil, err
		}
		return store, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.Warn("mongo disconnect failed", zap.Error(err))
			}
		}, nil

	default:
		path := cfg.Database.Path
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		store, err := sqlite.New(path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Warn("sqlite close failed", zap.Error(err))
			}
		}, nil
	}
}

// seedWeeklyDefaults writes the configured weekday limits when the store has
// none yet. Stored defaults always win over the file.
func seedWeeklyDefaults(ctx context.Context, store scheduling.Store, limits []int, log *zap.Logger) error {
	if len(limits) == 0 {
		return nil
	}
	existing, err := store.FetchWeeklyDefaults(ctx)
	if err != nil {
		return fmt.Errorf("fetch weekly defaults: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}
	if err := store.SaveWeeklyDefaults(ctx, capacity.WeeklyDefaults(limits)); err != nil {
		return fmt.Errorf("seed weekly defaults: %w", err)
	}
	log.Info("seeded weekly capacity defaults", zap.Ints("limits", limits))
	return nil
}
