package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/reflex/internal/bus"
	"github.com/alfredjeanlab/reflex/internal/config"
	"github.com/alfredjeanlab/reflex/internal/engine"
	"github.com/alfredjeanlab/reflex/internal/event"
	"github.com/alfredjeanlab/reflex/internal/export"
	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/notify"
	"github.com/alfredjeanlab/reflex/internal/schedule"
	"github.com/alfredjeanlab/reflex/internal/schema"
	"github.com/alfredjeanlab/reflex/internal/server"
	"github.com/alfredjeanlab/reflex/internal/store/postgres"
	"github.com/alfredjeanlab/reflex/internal/task"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the Reflex server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Connect to Postgres.
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Load source schemas.
		var schemas *schema.Registry
		if cfg.SchemaFile != "" {
			schemas, err = schema.LoadFile(cfg.SchemaFile)
		} else {
			schemas, err = schema.Default()
		}
		if err != nil {
			store.Close()
			return err
		}

		// Create bus publisher.
		var publisher bus.Publisher
		if cfg.NATSURL != "" {
			pub, err := bus.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("bus enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &bus.NoopPublisher{}
			logger.Info("bus disabled (REFLEX_NATS_URL not set)")
		}

		// Create the task worker and register action handlers.
		worker := task.New(store, publisher, logger, task.Config{
			Concurrency:    cfg.WorkerConcurrency,
			HandlerTimeout: cfg.HandlerTimeout,
			DrainTimeout:   cfg.DrainTimeout,
		})
		worker.Register(model.ActionScript, task.NewScriptHandler(task.NewExecRunner(cfg.ScriptsDir)))
		if cfg.WakeURL != "" {
			invoker := task.NewHTTPInvoker(cfg.WakeURL, cfg.WakeToken)
			worker.Register(model.ActionWakeLLM, task.NewWakeLLMHandler(invoker))
			logger.Info("wake_llm handler registered", "url", cfg.WakeURL)
		} else {
			logger.Warn("REFLEX_WAKE_URL not set, wake_llm tasks will fail")
		}
		if err := worker.Start(context.Background()); err != nil {
			publisher.Close()
			store.Close()
			return err
		}

		// Create the event engine.
		normalizer := event.NewNormalizer(schemas)
		eng := engine.New(store, normalizer, worker, publisher, logger)

		// Create the message notifier.
		notifier := notify.New(store, logger, notify.Config{
			QueueSize:         cfg.SubscriberQueueSize,
			HeartbeatInterval: cfg.HeartbeatInterval,
			ReapAfter:         cfg.SubscriberReapAfter,
		})
		notifier.Start()

		// Start HTTP server.
		srv := server.New(store, eng, notifier, schemas, publisher, logger)
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: srv.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start cron triggers if a triggers file is configured.
		var cronSched *schedule.Scheduler
		if cfg.TriggersFile != "" {
			triggers, err := schedule.LoadFile(cfg.TriggersFile)
			if err != nil {
				logger.Error("failed to load triggers file", "path", cfg.TriggersFile, "err", err)
			} else {
				cronSched = schedule.New(eng, logger)
				for _, t := range triggers {
					if err := cronSched.Add(t); err != nil {
						logger.Error("failed to add trigger", "name", t.Name, "err", err)
					}
				}
				cronSched.Start()
				logger.Info("cron triggers started", "count", len(triggers))
			}
		}

		// Start audit export scheduler if configured.
		var exporter *export.Scheduler
		if cfg.ExportInterval > 0 {
			s3Dest, err := export.NewS3Destination(
				context.Background(),
				cfg.ExportS3Bucket,
				cfg.ExportS3Key,
				cfg.ExportS3Region,
				cfg.ExportS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 export destination", "err", err)
			} else {
				exporter = export.NewScheduler(store, []export.Destination{s3Dest}, cfg.ExportInterval, 0, logger)
				exporter.Start()
				logger.Info("audit export started", "bucket", cfg.ExportS3Bucket, "interval", cfg.ExportInterval)
			}
		}

		logger.Info("reflex server started", "http_addr", cfg.HTTPAddr)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown. Stop intake first (HTTP), then drain the
		// pipeline behind it, then close shared resources.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if cronSched != nil {
			cronSched.Stop()
			logger.Info("cron triggers stopped")
		}

		if exporter != nil {
			exporter.Stop()
			logger.Info("audit export stopped")
		}

		worker.Stop()
		logger.Info("task worker stopped")

		notifier.Stop()
		logger.Info("notifier stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
