package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-gatepass-api/api/swagger"
	"github.com/noah-isme/sma-gatepass-api/internal/app"
	"github.com/noah-isme/sma-gatepass-api/internal/handler"
	"github.com/noah-isme/sma-gatepass-api/internal/middleware"
	"github.com/noah-isme/sma-gatepass-api/internal/repository"
	"github.com/noah-isme/sma-gatepass-api/internal/service"
	"github.com/noah-isme/sma-gatepass-api/pkg/config"
	"github.com/noah-isme/sma-gatepass-api/pkg/database"
	"github.com/noah-isme/sma-gatepass-api/pkg/export"
	"github.com/noah-isme/sma-gatepass-api/pkg/logger"
	"github.com/noah-isme/sma-gatepass-api/pkg/messaging"
	corsmiddleware "github.com/noah-isme/sma-gatepass-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-gatepass-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-gatepass-api/pkg/storage"
)

// @title SMA Gate Pass API
// @version 1.0.0
// @description Issues fee-gated exit passes, verifies them at the gate and mirrors student profiles from the school directory.
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "api-gateway")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := database.Migrate(a.DB); err != nil {
		return err
	}

	store, documents, err := newDocumentStore(ctx, cfg, logr)
	if err != nil {
		return err
	}
	gateway, err := newGateway(cfg, logr)
	if err != nil {
		return err
	}

	issuer := service.NewGatePassService(service.GatePassDeps{
		Calendar:  a.Calendar,
		Directory: a.Directory,
		Limiter:   service.NewRateLimiter(repository.NewRequestLedgerRepository(a.DB), a.Calendar),
		Passes:    repository.NewGatePassRepository(a.DB),
		Renderer:  export.NewGatePassRenderer(),
		Store:     store,
		Gateway:   gateway,
		Names:     a.Profiles,
		Metrics:   a.Metrics,
		Logger:    logr,
	}, service.GatePassConfig{
		SchoolName:      cfg.SchoolName,
		VerifyBaseURL:   cfg.Documents.VerifyBaseURL,
		DocumentTTL:     cfg.Documents.SignedURLTTL,
		ExternalTimeout: cfg.ExternalTimeout,
	})
	verifier := service.NewVerificationService(
		repository.NewGatePassRepository(a.DB),
		repository.NewScanRepository(a.DB),
		a.Profiles, gateway, a.Metrics, logr, cfg.SchoolName, cfg.ExternalTimeout,
	)
	auth := service.NewAuthService(nil, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		AdminKeyHash:      cfg.Admin.KeyHash,
		AuditorKeyHash:    cfg.Admin.AuditorKeyHash,
	})

	workers, err := a.StartSyncWorkers(ctx)
	if err != nil {
		return err
	}
	defer workers.Stop()
	if cfg.Sync.Enabled {
		a.Sync.StartTimer(ctx, cfg.Sync.Interval)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics, "/metrics", "/health", "/ready"))

	checks := map[string]handler.Pinger{"database": a.DB.PingContext}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}

	routes := handler.Routes{
		APIPrefix:    cfg.APIPrefix,
		GatePasses:   handler.NewGatePassHandler(issuer),
		Verification: handler.NewVerificationHandler(verifier, a.Location, logr),
		Auth:         handler.NewAuthHandler(auth),
		Sync:         handler.NewSyncHandler(a.Sync),
		Metrics:      handler.NewMetricsHandler(a.Metrics, checks),
		Tokens:       auth,
	}
	if documents != nil {
		routes.Documents = handler.NewDocumentHandler(documents, logr)
	}
	handler.RegisterRoutes(r, routes)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newDocumentStore returns the configured store. The LocalStore is also
// returned so that its signed links can be served by this process.
func newDocumentStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) (service.DocumentStore, *storage.LocalStore, error) {
	if cfg.Documents.Store == config.DocumentStoreS3 {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:   cfg.Documents.S3Bucket,
			Region:   cfg.Documents.S3Region,
			Endpoint: cfg.Documents.S3Endpoint,
			Prefix:   cfg.Documents.S3Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		logr.Sugar().Infow("document store ready", "backend", "s3", "bucket", cfg.Documents.S3Bucket)
		return s3Store, nil, nil
	}

	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)
	local, err := storage.NewLocalStore(cfg.Documents.LocalDir, signer, cfg.Documents.PublicBaseURL)
	if err != nil {
		return nil, nil, err
	}
	logr.Sugar().Infow("document store ready", "backend", "local", "dir", cfg.Documents.LocalDir)
	return local, local, nil
}

func newGateway(cfg *config.Config, logr *zap.Logger) (service.MessageGateway, error) {
	if cfg.Messaging.Token == "" {
		logr.Sugar().Warnw("whatsapp token not set, messages are logged only")
		return messaging.NewLogGateway(logr), nil
	}
	return messaging.NewCloudClient(messaging.CloudConfig{
		BaseURL:       cfg.Messaging.BaseURL,
		Token:         cfg.Messaging.Token,
		PhoneNumberID: cfg.Messaging.PhoneNumberID,
		Timeout:       cfg.ExternalTimeout,
	}, logr)
}
