/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the cost engine server. Handles configuration,
  state restoration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Read environment configuration, apply command-line overrides
  2. Initialize SQLite store
  3. Restore ledger and order book from persisted state
  4. Create API handler and background auditor
  5. Start server with graceful shutdown

CONFIGURATION:
  Environment variables (flags override):
    PORT            HTTP server port (default: 8080)
    DB_PATH         SQLite database path (default: cost-engine.db)
                    Use ":memory:" for in-memory database
    CORS_ORIGINS    Comma-separated allowed origins
    AUDIT_INTERVAL  Conservation sweep interval (default: 5m)

COMMAND-LINE FLAGS:
  -port    HTTP server port
  -db      SQLite database path

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the conservation auditor
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/ledger.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  PORT=3000 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/auditor.go: Background conservation sweeps
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/meridian/cost-engine/api"
	"github.com/meridian/cost-engine/store/sqlite"
)

type config struct {
	Port          int           `env:"PORT" envDefault:"8080"`
	DBPath        string        `env:"DB_PATH" envDefault:"cost-engine.db"`
	CORSOrigins   []string      `env:"CORS_ORIGINS" envSeparator:","`
	AuditInterval time.Duration `env:"AUDIT_INTERVAL" envDefault:"5m"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to read environment: %v", err)
	}

	// Flags override the environment
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Restore persisted state
	eng, book, err := store.LoadState(context.Background())
	if err != nil {
		log.Fatalf("Failed to restore state: %v", err)
	}
	log.Printf("Restored %d resources, %d processes", len(eng.Resources()), len(eng.Processes()))

	// The store doubles as the event journal.
	handler := api.NewHandler(eng, book, store, store)

	// Background conservation sweeps
	auditor := api.NewAuditor(handler)
	auditor.SweepInterval = cfg.AuditInterval
	auditor.Start()

	// Create router
	router := api.NewRouter(handler, cfg.CORSOrigins)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	auditor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
