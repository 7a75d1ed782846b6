/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the document issuance server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load environment config (.env honored) and parse flag overrides
  2. Initialize the SQLite store
  3. Seed default numbering policies for unconfigured modules
  4. Create the API handler and router
  5. Start the server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/document-engine/api"
	"github.com/warp/document-engine/config"
	"github.com/warp/document-engine/document"
	"github.com/warp/document-engine/factory"
	"github.com/warp/document-engine/logger"
	"github.com/warp/document-engine/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags override environment config
	port := flag.String("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Seed numbering policies for modules without one. Existing policies
	// are never overwritten here; admin updates go through the API.
	ctx := context.Background()
	for _, p := range factory.DefaultPolicies() {
		existing, err := store.GetPolicy(ctx, document.Module(p.Module))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read numbering policies")
		}
		if existing != nil {
			continue
		}
		if err := store.SavePolicy(ctx, p); err != nil {
			log.Fatal().Err(err).Str("module", p.Module).Msg("failed to seed numbering policy")
		}
		log.Info().Str("module", p.Module).Str("prefix", p.Prefix).Msg("seeded numbering policy")
	}

	// Create router
	handler := api.NewHandler(store, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
