/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the rent scheduling server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Initialize SQLite store
  3. Create scheduler, API handler and token issuer
  4. Configure HTTP router
  5. Start the reminder job
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port          HTTP server port (default: 8080, env PORT)
  -db            SQLite database path (default: rent.db, env DB_PATH)
                 Use ":memory:" for in-memory database
  -issue-token   Print a bearer token for "role:user_id" and exit

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reminder job
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  JWT_SECRET=dev ./server -db="./data/rent.db"

  # Get a landlord token for local testing
  JWT_SECRET=dev ./server -issue-token=landlord:landlord-1

SEE ALSO:
  - config/config.go: Configuration keys
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/warp/rent-scheduler/api"
	"github.com/warp/rent-scheduler/auth"
	"github.com/warp/rent-scheduler/config"
	"github.com/warp/rent-scheduler/schedule"
	"github.com/warp/rent-scheduler/store/sqlite"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		log.Fatalf("Failed to create token issuer: %v", err)
	}

	if cfg.IssueToken != "" {
		role, userID, ok := strings.Cut(cfg.IssueToken, ":")
		if !ok || userID == "" {
			log.Fatalf(`-issue-token expects "role:user_id", got %q`, cfg.IssueToken)
		}
		token, err := issuer.Issue(userID, auth.Role(role))
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	clock := schedule.SystemClock{}
	scheduler := schedule.NewScheduler(store, clock, cfg.Currency)
	handler := api.NewHandler(store, scheduler)
	router := api.NewRouter(handler, issuer, cfg.CORSOrigins)

	reminders := api.NewPaymentReminders(store, clock)
	reminders.Spec = cfg.ReminderCron
	reminders.DaysAhead = cfg.ReminderDaysAhead
	reminders.Enabled = cfg.RemindersEnabled
	if err := reminders.Start(); err != nil {
		log.Fatalf("Failed to start reminders: %v", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", cfg.Port)
		log.Printf("API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	reminders.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
