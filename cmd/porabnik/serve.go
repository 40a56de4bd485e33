package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erazemk/porabnik/internal/api"
	"github.com/erazemk/porabnik/internal/db"
	"github.com/erazemk/porabnik/internal/events"
	"github.com/erazemk/porabnik/internal/inventory"
	"github.com/erazemk/porabnik/internal/logger"
	"github.com/erazemk/porabnik/internal/store"
	"github.com/erazemk/porabnik/internal/sweep"
)

func newServeCommand(c *cli) *cobra.Command {
	var office, admin string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd, office, admin)
		},
	}
	cmd.Flags().StringVar(&office, "office", "Main", "office created on first run")
	cmd.Flags().StringVarP(&admin, "user", "u", "Admin", "admin username created on first run")
	return cmd
}

func (c *cli) serve(cmd *cobra.Command, officeName, adminName string) error {
	cfg := c.cfg

	log, err := logger.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	// Initialize on first run.
	exists, err := db.Exists(cfg.Database.Path)
	if err != nil {
		return err
	}
	if !exists {
		password, err := initDatabase(cmd.Context(), cfg.Database.Path, officeName, adminName)
		if err != nil {
			return fmt.Errorf("initializing database: %w", err)
		}
		printInitResult(cmd.OutOrStdout(), cfg.Database.Path, officeName, adminName, password)
	}

	database, err := openDatabase(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()
	log.Info("database ready", zap.String("path", cfg.Database.Path))

	jwtSecret, err := store.GetJWTSecret(cmd.Context(), database)
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	blobs, err := newBlobStore(cfg.Blob)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	log.Info("blob store ready", zap.String("backend", cfg.Blob.Backend))

	publisher, err := events.NewRabbit(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
	if err != nil {
		log.Warn("item events disabled", zap.Error(err))
		publisher = nil
	} else if publisher != nil {
		defer publisher.Close()
		log.Info("publishing item events", zap.String("exchange", cfg.Rabbit.Exchange))
	}

	engine := inventory.New(database, blobs, publisher, logger.Named(log, "inventory"))

	if cfg.Sweep.Schedule != "" {
		sweeper := sweep.NewScheduler(database, blobs, cfg.Sweep.Grace, logger.Named(log, "sweep"))
		if err := sweeper.Start(cfg.Sweep.Schedule); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", api.NewRouter(database, engine, jwtSecret, logger.Named(log, "api")))

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.LoggingMiddleware(logger.Named(log, "http"))(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	log.Info("server started", zap.String("addr", cfg.Server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}

	log.Info("server stopped, closing database")
	return nil
}
