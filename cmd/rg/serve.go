package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/refguard/internal/config"
	"github.com/alfredjeanlab/refguard/internal/events"
	"github.com/alfredjeanlab/refguard/internal/odm"
	"github.com/alfredjeanlab/refguard/internal/refcheck"
	"github.com/alfredjeanlab/refguard/internal/server"
	"github.com/alfredjeanlab/refguard/internal/store"
	"github.com/alfredjeanlab/refguard/internal/store/memory"
	"github.com/alfredjeanlab/refguard/internal/store/mongo"
	"github.com/alfredjeanlab/refguard/internal/store/postgres"
	refsync "github.com/alfredjeanlab/refguard/internal/sync"
)

// openStore connects to the backend selected by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		return postgres.New(cfg.DatabaseURL)
	case config.StoreMongo:
		return mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.StoreMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// buildRegistry defines every model of the schema file on a registry backed
// by s, with reference checks installed according to the file's scope.
func buildRegistry(cfg *config.Config, s store.Store, logger *slog.Logger) (*odm.Registry, error) {
	schema, err := config.LoadSchemaFile(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}
	reg := odm.NewRegistry(s, logger)
	check := refcheck.Plugin(reg,
		refcheck.WithConcurrency(cfg.CheckConcurrency),
		refcheck.WithLogger(logger),
	)
	if err := schema.Register(reg, check); err != nil {
		return nil, err
	}
	return reg, nil
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the refguard HTTP and gRPC servers",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := openStore(context.Background(), cfg)
		if err != nil {
			return err
		}
		logger.Info("store opened", "kind", cfg.Store)

		reg, err := buildRegistry(cfg, st, logger)
		if err != nil {
			st.Close()
			return err
		}
		logger.Info("schema loaded", "file", cfg.SchemaFile, "models", len(reg.Models()))

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (REFGUARD_NATS_URL not set)")
		}

		// Create server components.
		docServer := server.NewDocumentServer(reg, publisher, logger)
		grpcServer := server.NewGRPCServer(docServer, cfg.AuthToken)

		// Start gRPC listener.
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			st.Close()
			return err
		}

		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		// Start HTTP server.
		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           docServer.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start sync scheduler if any destinations are configured.
		var scheduler *refsync.Scheduler
		if cfg.SyncInterval > 0 {
			var dests []refsync.Destination

			if cfg.SyncS3Bucket != "" {
				s3Dest, err := refsync.NewS3Destination(
					context.Background(),
					cfg.SyncS3Bucket,
					cfg.SyncS3Key,
					cfg.SyncS3Region,
					cfg.SyncS3Endpoint,
				)
				if err != nil {
					logger.Error("failed to create S3 sync destination", "err", err)
				} else {
					dests = append(dests, s3Dest)
					logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
				}
			}

			if cfg.SyncGitRepo != "" {
				gitDest := refsync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch)
				dests = append(dests, gitDest)
				logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
			}

			if len(dests) > 0 {
				scheduler = refsync.NewScheduler(st, dests, cfg.SyncInterval, logger)
				scheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
			}
		}

		logger.Info("refguard server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"check_concurrency", cfg.CheckConcurrency,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
