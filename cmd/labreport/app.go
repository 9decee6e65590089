package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/lab-report-parser/internal/common"
	"github.com/joseph-ayodele/lab-report-parser/internal/core/report"
	"github.com/joseph-ayodele/lab-report-parser/internal/corrections"
	"github.com/joseph-ayodele/lab-report-parser/internal/extract"
	"github.com/joseph-ayodele/lab-report-parser/internal/ocr"
	"github.com/joseph-ayodele/lab-report-parser/internal/pipeline"
	"github.com/joseph-ayodele/lab-report-parser/internal/repository"
	"github.com/joseph-ayodele/lab-report-parser/internal/rules"
)

// app is the wiring shared by the subcommands.
type app struct {
	cfg         *common.Config
	logger      *slog.Logger
	db          *repository.DB
	reports     repository.ReportRepository
	corrections repository.CorrectionRepository
	store       corrections.Store
	rdb         *redis.Client
}

// loadConfig reads configuration and builds the JSON logger on stderr so stdout
// stays free for command output.
func loadConfig() (*common.Config, *slog.Logger, error) {
	cfg, err := common.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if inMemory {
		cfg.Database.Driver = "sqlite"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openApp loads configuration, opens and migrates the database and builds the
// correction store.
func openApp(ctx context.Context) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var db *repository.DB
	if inMemory {
		db, err = repository.OpenInMemory(ctx, logger)
	} else {
		db, err = repository.Open(ctx, cfg.Database, logger)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		reports:     repository.NewReportRepository(db, logger),
		corrections: repository.NewCorrectionRepository(db, logger),
	}
	var store corrections.Store = corrections.NewRepositoryStore(a.corrections, logger)
	if cfg.Cache.Enabled {
		a.rdb = redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr, Password: cfg.Cache.Password, DB: cfg.Cache.DB})
		store = corrections.NewCachedStore(store, a.rdb, cfg.Cache.TTL, cfg.Cache.Prefix, logger)
	}
	a.store = store
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("redis.close.failed", "error", err)
		}
	}
	a.db.Close()
}

func (a *app) assembler() (*report.Assembler, error) {
	tables := rules.Default()
	if a.cfg.Rules.Path != "" {
		t, err := rules.LoadFile(a.cfg.Rules.Path)
		if err != nil {
			return nil, err
		}
		tables = t
	}
	return report.NewAssembler(tables, report.WithCorrections(a.store), report.WithLogger(a.logger)), nil
}

func (a *app) stages() (*pipeline.OCRStage, *pipeline.ParseStage, error) {
	asm, err := a.assembler()
	if err != nil {
		return nil, nil, err
	}
	extractor := ocr.NewExtractor(ocr.ConfigFrom(a.cfg.OCR), a.logger)
	return pipeline.NewOCRStage(extract.NewOCRAdapter(extractor), a.logger),
		pipeline.NewParseStage(asm, a.logger),
		nil
}
