// Package app assembles the infrastructure shared by the API server and the
// operator CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gatepass-api/internal/repository"
	"github.com/noah-isme/sma-gatepass-api/internal/service"
	"github.com/noah-isme/sma-gatepass-api/pkg/cache"
	"github.com/noah-isme/sma-gatepass-api/pkg/calendar"
	"github.com/noah-isme/sma-gatepass-api/pkg/config"
	"github.com/noah-isme/sma-gatepass-api/pkg/database"
	"github.com/noah-isme/sma-gatepass-api/pkg/directory"
)

const cacheKeyPrefix = "gatepass:"

// App holds long-lived connections and the services both binaries need.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Location  *time.Location
	Calendar  *calendar.Calendar
	DB        *sqlx.DB
	Redis     *redis.Client
	Metrics   *service.MetricsService
	Directory *directory.Client
	Profiles  *service.ProfileService
	Sync      *service.ProfileSyncService
}

// New connects to Postgres (and Redis when reachable), loads the term calendar
// and builds the profile services. Migrations are not applied here.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := time.LoadLocation(cfg.Calendar.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load school timezone %q: %w", cfg.Calendar.Timezone, err)
	}
	cal, err := calendar.Load(cfg.Calendar.File, loc)
	if err != nil {
		return nil, err
	}

	dir, err := directory.New(directory.Config{
		BaseURL:    cfg.Directory.BaseURL,
		APIKey:     cfg.Directory.APIKey,
		Timeout:    cfg.ExternalTimeout,
		MaxRetries: cfg.Directory.MaxRetries,
		RetryDelay: cfg.Directory.RetryDelay,
	}, logger)
	if err != nil {
		return nil, err
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Sugar().Warnw("redis unavailable, profile cache disabled", "error", err)
		redisClient = nil
	}

	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, cacheKeyPrefix, logger),
		metrics, cfg.Cache.ProfileTTL, logger, redisClient != nil,
	)
	profiles := service.NewProfileService(repository.NewStudentProfileRepository(db), cacheSvc, cfg.Cache.ProfileTTL, logger)

	sync := service.NewProfileSyncService(service.ProfileSyncDeps{
		Pager:       dir.WithoutRetries(),
		Checkpoints: repository.NewSyncCheckpointRepository(db),
		Profiles:    repository.NewStudentProfileRepository(db),
		Failures:    repository.NewFailedSyncRepository(db),
		Cache:       profiles,
		Metrics:     metrics,
		Logger:      logger,
	}, service.ProfileSyncConfig{
		PageSize:        cfg.Sync.PageSize,
		TimeCeiling:     cfg.Sync.TimeCeiling,
		PageRetries:     cfg.Sync.PageRetries,
		RetryBackoff:    cfg.Sync.RetryBackoff,
		CountryCode:     cfg.DefaultCountryCode,
		ExternalTimeout: cfg.ExternalTimeout,
	})

	return &App{
		Config:    cfg,
		Logger:    logger,
		Location:  loc,
		Calendar:  cal,
		DB:        db,
		Redis:     redisClient,
		Metrics:   metrics,
		Directory: dir,
		Profiles:  profiles,
		Sync:      sync,
	}, nil
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
