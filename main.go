package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/animanga/mangapipe/internal/api"
	"github.com/animanga/mangapipe/internal/config"
	"github.com/animanga/mangapipe/internal/core"
	"github.com/animanga/mangapipe/internal/jobs"
	"github.com/animanga/mangapipe/internal/quota"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()

	// Start the scheduled cache maintenance.
	jobs.StartJobs(app)

	// Pick up quota limit changes without a restart.
	config.Watch(func(cfg *config.Config) {
		app.Quotas().SetLimits(
			quota.Limits{Daily: cfg.Quota.StandardDaily, Monthly: cfg.Quota.StandardMonthly},
			quota.Limits{Daily: cfg.Quota.PremiumDaily, Monthly: cfg.Quota.PremiumMonthly},
		)
		log.Println("Applied updated quota limits")
	})

	// Setup the API server
	server := api.NewServer(app)
	addr := fmt.Sprintf(":%d", app.Config().Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}
	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		log.Printf("Starting web server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Create a context with a timeout to allow existing connections to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Attempt a graceful shutdown.
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
