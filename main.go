package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/fitroom/internal/auth"
	"github.com/example/fitroom/internal/compositor"
	"github.com/example/fitroom/internal/config"
	"github.com/example/fitroom/internal/generation"
	"github.com/example/fitroom/internal/handlers"
	"github.com/example/fitroom/internal/logging"
	"github.com/example/fitroom/internal/middleware"
	"github.com/example/fitroom/internal/pipeline"
	"github.com/example/fitroom/internal/removal"
	"github.com/example/fitroom/internal/repository"
	"github.com/example/fitroom/internal/usecase"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.Server.Mode)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	db := initDatabase(ctx, cfg, logger)
	repo := repository.NewProcessingLogRepository(db)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg, logger)
	cache := usecase.NewRedisCache(redisClient, cfg.Redis.TTL)

	local := removal.NewLocalRemover()
	local.FeatherSigma = cfg.Removal.FeatherSigma
	remover := removal.NewCoordinator(logger,
		removal.NewRemoteRemover(cfg.Removal.Endpoint, cfg.Removal.APIKey, cfg.Removal.Timeout),
		local,
	)
	orchestrator := pipeline.NewOrchestrator(remover, cfg.Upload.MaxDimension, logger)

	store, err := compositor.LoadStore(cfg.Backdrops.Dir, logger)
	if err != nil {
		logger.Fatal("failed to load backdrop templates", zap.Error(err))
	}
	compose := compositor.NewCompositor(remover, store, logger)

	generator := generation.NewRESTClient(cfg.Generation.BaseURL, cfg.Generation.APIKey,
		cfg.Generation.Model, cfg.Generation.Timeout, logger)

	uc := usecase.NewTryOnUseCase(repo, cache, orchestrator, generator, compose, logger)

	scheduler := startRetentionJob(cfg, repo, logger)
	defer scheduler.Stop()

	gin.SetMode(ginMode(cfg.Server.Mode))
	r := gin.New()
	r.Use(middleware.RequestLogger(logger), middleware.Recovery(logger))
	r.MaxMultipartMemory = handlers.MaxUploadSize

	authMiddleware := auth.JWTMiddleware(cfg.Auth.JWTSecret, cfg.Auth.JWTAudience)
	handlers.RegisterRoutes(r, uc, store, authMiddleware)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	logger.Info("try-on API listening", zap.String("addr", cfg.Server.Addr))
	if err := serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

// startRetentionJob schedules the periodic purge of old processing logs.
func startRetentionJob(cfg *config.Config, repo *repository.ProcessingLogRepository, logger *zap.Logger) *cron.Cron {
	scheduler := cron.New()
	jobLogger := logger.Named("retention")
	if cfg.Retention.MaxAge <= 0 {
		jobLogger.Info("retention disabled")
		return scheduler
	}
	_, err := scheduler.AddFunc(cfg.Retention.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		cutoff := time.Now().UTC().Add(-cfg.Retention.MaxAge)
		purged, err := repo.PurgeOlderThan(ctx, cutoff)
		if err != nil {
			jobLogger.Error("purge failed", zap.Error(err))
			return
		}
		jobLogger.Info("purged old processing logs", zap.Int64("rows", purged), zap.Time("cutoff", cutoff))
	})
	if err != nil {
		logger.Fatal("invalid retention schedule", zap.Error(err))
	}
	scheduler.Start()
	return scheduler
}

func ginMode(mode string) string {
	if mode == "debug" {
		return gin.DebugMode
	}
	return gin.ReleaseMode
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithListener(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, listener, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
