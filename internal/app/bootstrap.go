// Package app wires the records services and their optional infrastructure from
// configuration. Both drivers start here.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/gloodan17/Course-Enrollment-Database/internal/repository"
	"github.com/gloodan17/Course-Enrollment-Database/internal/service"
	"github.com/gloodan17/Course-Enrollment-Database/internal/store"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/cache"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/config"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/database"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/export"
	"github.com/gloodan17/Course-Enrollment-Database/pkg/storage"
)

// Resources is the wired application.
type Resources struct {
	Records  *service.Records
	Exporter *service.ExportService
	Metrics  *service.MetricsService

	closers []func() error
	logger  *zap.Logger
}

// Open builds the services over st. Cache and audit are attached only when enabled
// and reachable; failures there are logged and the concern is skipped. metrics may
// be nil.
func Open(ctx context.Context, cfg *config.Config, st store.Store, logger *zap.Logger, metrics *service.MetricsService) (*Resources, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	res := &Resources{Metrics: metrics, logger: logger}
	opts := service.RecordsOptions{
		Logger:    logger,
		Validator: validator.New(),
		CacheTTL:  cfg.Cache.TTL,
	}
	if metrics != nil {
		opts.Metrics = metrics
	}

	if cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("listing cache disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(client, logger)
			res.closers = append(res.closers, repo.Close)
			opts.Cache = service.NewCacheService(repo, metrics, cfg.Cache.TTL, logger, true)
		}
	}

	if cfg.Audit.Enabled {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logger.Warn("audit trail disabled", zap.Error(err))
		} else {
			audit := repository.NewAuditRepository(db)
			if err := audit.EnsureSchema(ctx); err != nil {
				_ = db.Close()
				logger.Warn("audit trail disabled", zap.Error(err))
			} else {
				res.closers = append(res.closers, db.Close)
				opts.Audit = audit
			}
		}
	}

	records, err := service.NewRecords(ctx, st, opts)
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("bootstrap records: %w", err)
	}
	res.Records = records

	csv, pdf := export.NewCSVExporter(), export.NewPDFExporter()
	if cfg.Export.Dir != "" {
		files, err := storage.NewLocalStorage(cfg.Export.Dir)
		if err != nil {
			logger.Warn("export storage unavailable", zap.String("dir", cfg.Export.Dir), zap.Error(err))
			res.Exporter = service.NewExportService(records, nil, logger, csv, pdf)
		} else {
			res.Exporter = service.NewExportService(records, files, logger, csv, pdf)
		}
	} else {
		res.Exporter = service.NewExportService(records, nil, logger, csv, pdf)
	}
	return res, nil
}

// Close releases the cache and audit connections.
func (r *Resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn("close resource", zap.Error(err))
		}
	}
	r.closers = nil
}
