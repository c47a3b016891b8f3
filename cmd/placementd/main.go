// Package main is the entry point for the placementd planning service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/virtforge/placementd/internal/config"
	"github.com/virtforge/placementd/internal/domain"
	"github.com/virtforge/placementd/internal/planner"
	"github.com/virtforge/placementd/internal/plans"
	"github.com/virtforge/placementd/internal/provision"
	"github.com/virtforge/placementd/internal/repository/memory"
	"github.com/virtforge/placementd/internal/repository/postgres"
	"github.com/virtforge/placementd/internal/server"
	"github.com/virtforge/placementd/internal/vsphere"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		println("placementd")
		println("Version:", version)
		println("Commit:", commit)
		println("Build Date:", buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		println("Failed to load config:", err.Error())
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	defer logger.Sync()

	logger.Info("Starting placementd",
		zap.String("version", version),
		zap.String("commit", commit),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Connect to the hypervisor and take the initial inventory snapshot.
	// Without a configured endpoint the service starts with an empty
	// session; /api/session/refresh is unavailable in that mode.
	var inventory server.InventorySource
	var provisioner plans.Provisioner
	snapshot := map[string]*domain.HostResource{}

	if cfg.VSphere.Host != "" {
		client, err := vsphere.NewClient(ctx, cfg.VSphere, logger)
		if err != nil {
			logger.Fatal("Failed to connect to vSphere", zap.Error(err))
		}
		defer client.Close(context.Background())

		snapshot, err = client.CollectSnapshot(ctx)
		if err != nil {
			logger.Fatal("Failed to collect inventory", zap.Error(err))
		}
		logger.Info("Inventory collected", zap.Int("hosts", len(snapshot)))

		inventory = client
		disks := vsphere.NewDiskManager(client, cfg.VSphere.Datacenter, logger)
		provisioner = provision.NewService(disks, logger)
	} else {
		logger.Warn("No vSphere endpoint configured, starting with an empty session")
	}

	session := planner.NewSession(snapshot, planner.Config{
		BufferMiB: cfg.Planner.BufferMiB,
	}, logger)

	// Plan history store: PostgreSQL when enabled, in-memory otherwise.
	var repo plans.Repository
	if cfg.Database.Enabled {
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
		}
		defer db.Close()
		repo = postgres.NewPlanRepository(db.Pool())
	} else {
		logger.Info("Using in-memory plan repository")
		repo = memory.NewPlanRepository()
	}

	planSvc := plans.NewService(session, repo, provisioner, logger)

	srv := server.New(cfg, planSvc, inventory, logger)
	if err := srv.Run(ctx); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Goodbye!")
}

// setupLogger configures the zap logger based on configuration.
func setupLogger(cfg config.LoggingConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapConfig zap.Config
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapConfig.Build()
	if err != nil {
		panic("Failed to create logger: " + err.Error())
	}
	return logger
}
