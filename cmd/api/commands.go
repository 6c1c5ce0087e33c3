package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/petermazzocco/go-blog-api/internal/auth"
	"github.com/petermazzocco/go-blog-api/internal/config"
	"github.com/petermazzocco/go-blog-api/internal/database"
	"github.com/petermazzocco/go-blog-api/internal/handlers"
	"github.com/petermazzocco/go-blog-api/internal/imaging"
	"github.com/petermazzocco/go-blog-api/internal/service"
	"github.com/petermazzocco/go-blog-api/internal/storage"
	"github.com/petermazzocco/go-blog-api/models"
	"github.com/petermazzocco/go-blog-api/pkg/logger"
)

func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func runMigrate(flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if _, err := openDB(cfg); err != nil {
		return err
	}
	logger.Info("Database schema is up to date", "driver", cfg.Database.Driver)
	return nil
}

func runSeed(flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	return seed(db, cfg)
}

func seed(db *gorm.DB, cfg *config.Config) error {
	if err := database.SeedRoles(db); err != nil {
		return err
	}
	return database.SeedAdmin(db, cfg.Admin)
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, http.Handler, error) {
	switch cfg.Storage.Driver {
	case "s3":
		s, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:          cfg.Storage.Bucket,
			AccountID:       cfg.Storage.AccountID,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			AccessKeySecret: cfg.Storage.AccessKeySecret,
			PublicURL:       cfg.Storage.PublicURL,
		})
		return s, nil, err
	default:
		d, err := storage.NewDisk(cfg.Storage.Root, cfg.GetBaseURL())
		if err != nil {
			return nil, nil, err
		}
		return d, d.Handler(), nil
	}
}

func newDenylist(ctx context.Context, cfg *config.Config, db *gorm.DB) (auth.Denylist, func(), error) {
	if cfg.Redis.URL == "" {
		return auth.NewGormDenylist(db), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("Tracking revoked tokens in redis")
	return auth.NewRedisDenylist(client), func() { _ = client.Close() }, nil
}

func runServe(parent context.Context, flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	if err := seed(db, cfg); err != nil {
		return err
	}

	files, filesHandler, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}
	denylist, closeDenylist, err := newDenylist(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeDenylist()

	policy := auth.NewPolicy(models.RoleAdmin)
	users := service.NewUserService(db)
	tokens := auth.NewTokenService(auth.TokenConfig{
		Secret:     cfg.JWT.Secret,
		TTL:        cfg.TokenTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	}, denylist, users)

	h := handlers.New(handlers.Services{
		Users: users,
		Posts: service.NewPostService(db, policy, files, service.Pager{
			DefaultLimit: cfg.Pagination.DefaultLimit,
			MaxLimit:     cfg.Pagination.MaxLimit,
		}),
		Comments: service.NewCommentService(db, policy),
		Images:   service.NewImageService(db, policy, files, imaging.NewVips(), cfg.MaxUploadBytes()),
		Tokens:   tokens,
	})

	if cfg.GoogleEnabled() {
		sessionKey := cfg.OAuth.SessionKey
		if sessionKey == "" {
			sessionKey = cfg.JWT.Secret
		}
		auth.SetupOAuth(auth.OAuthConfig{
			GoogleKey:    cfg.OAuth.GoogleKey,
			GoogleSecret: cfg.OAuth.GoogleSecret,
			CallbackBase: cfg.GetBaseURL(),
			SessionKey:   sessionKey,
			Secure:       cfg.IsProduction(),
		})
	}

	router := handlers.NewRouter(h, handlers.RouterConfig{
		Logger:       logger.FromContext(ctx),
		CorsOrigins:  cfg.Server.CorsOrigins,
		RateLimit:    cfg.RateLimit.Enabled,
		RateRequests: cfg.RateLimit.Requests,
		RateWindow:   cfg.RateWindow(),
		LoginBurst:   cfg.RateLimit.LoginBurst,
		OAuth:        cfg.GoogleEnabled(),
		Files:        filesHandler,
	})

	if _, ok := denylist.(*auth.GormDenylist); ok {
		go database.StartCleaner(ctx, db, cfg.CleanupInterval())
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting API server", "addr", srv.Addr, "env", cfg.Server.Env)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
