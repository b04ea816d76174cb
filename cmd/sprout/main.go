package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fernwood/sprout/internal/backup"
	"github.com/fernwood/sprout/internal/database"
	"github.com/fernwood/sprout/internal/logging"
	"github.com/fernwood/sprout/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("SPROUT_LOG_LEVEL"))

	port := os.Getenv("SPROUT_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("SPROUT_DB_PATH")
	if dbPath == "" {
		dbPath = "sprout.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := server.Config{
		LLM: server.LLMConfig{
			BaseURL: os.Getenv("SPROUT_LLM_BASE_URL"),
			APIKey:  os.Getenv("SPROUT_LLM_API_KEY"),
			Model:   os.Getenv("SPROUT_LLM_MODEL"),
		},
		Push: server.PushConfig{
			VAPIDPublicKey:  os.Getenv("SPROUT_VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: os.Getenv("SPROUT_VAPID_PRIVATE_KEY"),
		},
		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  os.Getenv("SPROUT_S3_ENDPOINT"),
				Bucket:    os.Getenv("SPROUT_S3_BUCKET"),
				Region:    os.Getenv("SPROUT_S3_REGION"),
				AccessKey: os.Getenv("SPROUT_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("SPROUT_S3_SECRET_KEY"),
			},
			DBPath:     dbPath,
			Passphrase: os.Getenv("SPROUT_BACKUP_PASSPHRASE"),
		},
	}

	srv := server.New(db, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.Scheduler().Start(ctx)
	defer srv.Scheduler().Stop()

	if srv.BackupManager().Enabled() {
		srv.BackupManager().Start(ctx)
		defer srv.BackupManager().Stop()
	}

	// Expired sessions and stale rate-limit buckets are swept hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					logger.Error("delete expired sessions", "error", err)
				} else if n > 0 {
					logger.Info("deleted expired sessions", "count", n)
				}
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("sprout listening", "addr", fmt.Sprintf("http://localhost:%s", port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
