package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/tokenvault/server/internal/auth"
	"github.com/tokenvault/server/internal/config"
	"github.com/tokenvault/server/internal/db"
	httphandler "github.com/tokenvault/server/internal/http"
	"github.com/tokenvault/server/internal/http/handlers"
	"github.com/tokenvault/server/internal/logging"
	"github.com/tokenvault/server/internal/repo"
)

func main() {
	// Load .env from CWD if present (env vars override)
	_ = godotenv.Load(".env")

	logging.Init("tokenvault")
	log := logging.Logger

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.Driver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if cfg.AutoMigrate {
		log.WithField("driver", cfg.Driver).Info("Bootstrapping schema")
		if err := db.Migrate(database, cfg.Driver); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize repositories
	websiteRepo := repo.NewWebsiteRepo(database, cfg.Driver)
	deviceRepo := repo.NewDeviceRepo(database, cfg.Driver)

	credentialService := auth.NewCredentialService(websiteRepo, deviceRepo)

	verifyHandler := handlers.NewVerifyHandler(credentialService, cfg.DevMode)
	healthHandler := handlers.NewHealthHandler(database)

	router := httphandler.NewRouter(verifyHandler, healthHandler)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": cfg.Port, "dev_mode": cfg.DevMode}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}
