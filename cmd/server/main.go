package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sigrafilm/internal/app"
	"sigrafilm/internal/config"
	"sigrafilm/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.InitLogger(logger.ParseLevel(cfg.LogLevel), os.Stderr)

	if err := cfg.EnsureDataDir(); err != nil {
		logger.Errorf("Failed to create data directory: %v", err)
		os.Exit(1)
	}

	a, err := app.New(cfg)
	if err != nil {
		logger.Errorf("Failed to initialize: %v", err)
		os.Exit(1)
	}
	defer a.Close()

	if cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
		logger.Warning("No fixed admin credential configured; set SIGRA_ADMIN_PASSWORD or SIGRA_ADMIN_PASSWORD_HASH")
	}

	if cfg.InsecureSecret() {
		logger.Warning("SECRET_KEY is not set; sessions are signed with the built-in development key")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("Shutdown: %v", err)
		}
	}()

	logger.Infof("Starting SigraFilm on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Failed to start server: %v", err)
		os.Exit(1)
	}
}
