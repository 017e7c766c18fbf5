package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-checkin/internal/config"
	"github.com/iliyamo/qr-checkin/internal/database"
	"github.com/iliyamo/qr-checkin/internal/handler"
	"github.com/iliyamo/qr-checkin/internal/logging"
	"github.com/iliyamo/qr-checkin/internal/metrics"
	"github.com/iliyamo/qr-checkin/internal/queue"
	"github.com/iliyamo/qr-checkin/internal/render"
	"github.com/iliyamo/qr-checkin/internal/repository"
	"github.com/iliyamo/qr-checkin/internal/rotation"
	"github.com/iliyamo/qr-checkin/internal/router"
	"github.com/iliyamo/qr-checkin/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real environment wins
	cfg := config.Load()

	logger := logging.New(logging.Options{Level: cfg.QR.LogLevel, File: cfg.QR.LogFile})
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logger.Warn("redis unavailable: rate limiting and image cache disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	store, db, err := openStore(cfg, rdb)
	if err != nil {
		logger.Fatal("open code store", zap.String("backend", cfg.QR.StoreBackend), zap.Error(err))
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}
	logger.Info("code store ready", zap.String("backend", cfg.QR.StoreBackend))

	scheduler := rotation.New(logger.Named("rotation"), recorder)
	opts := []service.Option{service.WithLogger(logger.Named("checkin")), service.WithMetrics(recorder)}
	if cfg.QR.QueueEnabled {
		opts = append(opts, service.WithPublisher(queue.NewPublisher("", logger.Named("publisher"))))
	}
	svc := service.New(store, scheduler, render.NewPNGRenderer(cfg.QR.ImageSize), service.Options{
		PayloadBaseURL:    cfg.QR.PayloadBaseURL,
		DefaultExpiration: cfg.QR.DefaultExpiration,
		DynamicExpiration: cfg.QR.DynamicExpiration,
		StoreTimeout:      cfg.QR.StoreTimeout,
		EnforceRotation:   cfg.QR.EnforceRotation,
		RotationTolerance: int64(cfg.QR.RotationTolerance),
		BcryptCost:        cfg.BcryptCost,
	}, opts...)

	if n, err := svc.ResumeRotations(ctx); err != nil {
		logger.Warn("resume rotations failed", zap.Error(err))
	} else {
		logger.Info("rotations resumed", zap.Int("count", n))
	}

	if cfg.QR.CleanupInterval > 0 {
		go sweepExpired(ctx, svc, cfg.QR.CleanupInterval, logger)
	}
	if cfg.QR.QueueEnabled {
		audit := logging.RotatingFile(cfg.QR.AuditLogFile, 0, 0, 0)
		defer func() { _ = audit.Close() }()
		go func() {
			if err := queue.StartScanConsumer(ctx, "", audit, logger.Named("consumer")); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("scan consumer stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, router.Deps{
		QR:        handler.NewQRHandler(svc),
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
		RateLimit: config.LoadRateLimitConfig(),
		Cache:     config.LoadCacheConfig(),
		Metrics:   metrics.Handler(reg),
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	scheduler.StopAll()
}

func openStore(cfg config.Config, rdb *redis.Client) (service.CodeStore, *sql.DB, error) {
	switch cfg.QR.StoreBackend {
	case config.BackendRedis:
		if rdb == nil {
			return nil, nil, errors.New("STORE_BACKEND=redis but redis is unreachable")
		}
		return repository.NewRedisQRCodeRepo(rdb, cfg.QR.RedisPrefix), nil, nil
	case config.BackendMemory:
		return repository.NewMemoryQRCodeRepo(), nil, nil
	default:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, 5*time.Second)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewQRCodeRepo(db), db, nil
	}
}

func sweepExpired(ctx context.Context, svc *service.CheckinService, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := svc.CleanupExpired(ctx); err != nil {
				logger.Warn("expiry sweep failed", zap.Int("removed", n), zap.Error(err))
			}
		}
	}
}
