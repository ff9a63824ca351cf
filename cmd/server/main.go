package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"novelhub/internal/config"
	apphttp "novelhub/internal/http"
	"novelhub/internal/repository/sqlite"
	"novelhub/internal/service"
	"novelhub/internal/session"
	"novelhub/internal/storage"
	"novelhub/internal/upload"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, keeping %s", cfg.Log.Level, logger.GetLevel())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	novelRepo := sqlite.NewNovelRepository(db)

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := novelRepo.Init(ctx); err != nil {
		logger.Fatalf("init novel repository: %v", err)
	}

	assetStore, localAssets, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}

	sessionStore, closeStore, err := buildSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup session store: %v", err)
	}
	defer closeStore()

	userService := service.NewUserService(userRepo, logger)
	novelService := service.NewNovelService(service.NovelServiceConfig{
		Novels:              novelRepo,
		Covers:              upload.NewUploader(assetStore, logger),
		RemoveCoverOnDelete: cfg.Assets.CleanupOnDelete,
		Logger:              logger,
	})

	tokens, err := session.NewTokens(cfg.Auth.SessionSecret, time.Duration(cfg.Auth.SessionTTLMinutes)*time.Minute)
	if err != nil {
		logger.Fatalf("setup session tokens: %v", err)
	}
	gate, err := session.NewGate(session.GateConfig{
		Tokens:       tokens,
		Store:        sessionStore,
		Users:        userService,
		CookieSecure: cfg.Auth.CookieSecure,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatalf("setup session gate: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler, err := apphttp.NewHandler(apphttp.Config{
		Users:          userService,
		Novels:         novelService,
		Gate:           gate,
		LocalAssets:    localAssets,
		MaxUploadBytes: cfg.Assets.MaxBytes,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatalf("setup handler: %v", err)
	}
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

// buildStorage returns the asset store; the local store is also returned so
// its directory can be served.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, *storage.LocalService, error) {
	if cfg.Assets.Backend == config.AssetBackendLocal {
		local, err := storage.NewLocalService(cfg.Assets.Dir, cfg.Assets.URLPrefix)
		if err != nil {
			return nil, nil, err
		}
		logger.Infof("storing covers in %s", local.Dir())
		return local, local, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	svc, err := storage.NewS3Service(client, storage.S3Options{
		Bucket:    cfg.Storage.Bucket,
		KeyPrefix: cfg.Storage.KeyPrefix,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return svc, nil, nil
}

func buildSessionStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (session.Store, func(), error) {
	if cfg.Session.Backend != config.SessionBackendRedis {
		logger.Info("keeping sessions in memory")
		return session.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}
	logger.Infof("keeping sessions in redis at %s", cfg.Redis.Addr)
	return session.NewRedisStore(client), func() {
		if err := client.Close(); err != nil {
			logger.Warnf("close redis: %v", err)
		}
	}, nil
}
