package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloud-consulting/email-engine/internal/config"
	"github.com/cloud-consulting/email-engine/internal/server"
	"github.com/cloud-consulting/email-engine/pkg/logger"
)

func main() {
	log.Println("Starting email delivery engine...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)
	appLogger.Infof("Configuration loaded. Port: %s, LogLevel: %s", cfg.Port, cfg.LogLevel)

	srv, err := server.New(cfg, appLogger.Logger)
	if err != nil {
		appLogger.Fatalf("Failed to create server: %v", err)
	}

	appLogger.Info("Server created successfully")

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Handler(),
	}

	go func() {
		appLogger.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	appLogger.Infof("Server is running at http://localhost:%s", cfg.Port)
	appLogger.Info("Health check available at /health")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		appLogger.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := srv.Close(); err != nil {
		appLogger.WithError(err).Error("Error closing server resources")
	}

	appLogger.Info("Server exited")
}
