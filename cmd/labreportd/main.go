package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/lab-report-parser/internal/async"
	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/core/report"
	"github.com/joseph-ayodele/lab-report-parser/internal/corrections"
	"github.com/joseph-ayodele/lab-report-parser/internal/extract"
	"github.com/joseph-ayodele/lab-report-parser/internal/ingest"
	"github.com/joseph-ayodele/lab-report-parser/internal/metrics"
	"github.com/joseph-ayodele/lab-report-parser/internal/ocr"
	"github.com/joseph-ayodele/lab-report-parser/internal/pipeline"
	"github.com/joseph-ayodele/lab-report-parser/internal/repository"
	"github.com/joseph-ayodele/lab-report-parser/internal/rules"
	"github.com/joseph-ayodele/lab-report-parser/internal/server"
)

func main() {
	cfgFile := flag.String("config", "", "config file (default: ./labreport.yaml or ~/.labreport/labreport.yaml)")
	flag.Parse()

	mgr, err := common.NewManager(*cfgFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	cfg := mgr.Get()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(2)
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Log.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err, "driver", cfg.Database.Driver)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNew(registry)

	reportsRepo := repository.NewReportRepository(db, logger)
	var store corrections.Store = corrections.NewRepositoryStore(
		repository.NewCorrectionRepository(db, logger), logger, corrections.WithStoreMetrics(m))
	if cfg.Cache.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr, Password: cfg.Cache.Password, DB: cfg.Cache.DB})
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("redis.close.failed", "error", err)
			}
		}()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, lookups will fall through to the database", "addr", cfg.Cache.Addr, "error", err)
		}
		store = corrections.NewCachedStore(store, rdb, cfg.Cache.TTL, cfg.Cache.Prefix, logger)
	}

	tables, err := loadRules(cfg.Rules.Path)
	if err != nil {
		logger.Error("failed to load rule tables", "path", cfg.Rules.Path, "error", err)
		os.Exit(1)
	}
	assembler := report.NewAssembler(tables,
		report.WithCorrections(store),
		report.WithMetrics(m),
		report.WithLogger(logger),
	)

	mgr.OnChange(func(c *common.Config) {
		level.Set(c.Log.SlogLevel())
		t, err := loadRules(c.Rules.Path)
		if err != nil {
			logger.Error("rules.reload.failed", "path", c.Rules.Path, "error", err)
			return
		}
		if err := assembler.Reload(t); err != nil {
			logger.Error("rules.reload.failed", "path", c.Rules.Path, "error", err)
		}
	})
	mgr.WatchConfig(logger)

	extractor := ocr.NewExtractor(ocr.ConfigFrom(cfg.OCR), logger)
	processor := pipeline.NewProcessor(logger,
		pipeline.NewOCRStage(extract.NewOCRAdapter(extractor), logger),
		pipeline.NewParseStage(assembler, logger),
		reportsRepo,
	)

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Batch.Workers),
		async.WithQueueSize(cfg.Batch.QueueSize),
		async.WithProcessTimeout(cfg.Batch.Timeout),
	)

	api := server.NewAPI(processor, reportsRepo, corrections.NewService(store, reportsRepo, logger), store, logger)

	// gRPC
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(server.UnaryLogging(logger)))
	server.NewGRPCServer(api, logger).Register(grpcServer)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(server.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	errc := make(chan error, 3)
	go func() {
		logger.Info("labreportd listening", "grpc_addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			errc <- err
		}
	}()

	// HTTP
	var httpServer *server.HTTPServer
	if cfg.Server.HTTPAddr != "" {
		router := server.NewRouter(api, registry, func(ctx context.Context) error {
			return db.HealthCheck(ctx, time.Second)
		}, logger)
		httpServer = server.NewHTTPServer(cfg.Server.HTTPAddr, router, logger)
		go func() {
			if err := httpServer.Start(); err != nil {
				errc <- err
			}
		}()
	}

	// Inbox
	if len(cfg.Inbox.Dirs) > 0 {
		inbox := ingest.NewInbox(cfg.Inbox, queue, logger)
		go func() {
			if err := inbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errc:
		logger.Error("server error, shutting down", "error", err)
		stop()
	}

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Batch.Timeout)
	defer cancel()
	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	}
	grpcServer.GracefulStop()
	queue.Shutdown(shutdownCtx)
}

func loadRules(path string) (*rules.Tables, error) {
	if path == "" {
		return rules.Default(), nil
	}
	return rules.LoadFile(path)
}
