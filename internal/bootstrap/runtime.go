// Package bootstrap connects the store, redis and upload backend selected by Config.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"minisocial/internal/cache"
	"minisocial/internal/config"
	"minisocial/internal/database"
	"minisocial/internal/middleware"
	"minisocial/internal/observability"
	"minisocial/internal/repository"
	"minisocial/internal/upload"

	"github.com/redis/go-redis/v9"
)

// Runtime holds the live dependencies a process needs.
type Runtime struct {
	Posts    repository.PostRepository
	Redis    *redis.Client
	Uploader *upload.Uploader
	// MediaDir is set when the local upload backend is active and its files
	// must be served under /media.
	MediaDir string

	closers []func(context.Context) error
}

// Options control runtime initialization behavior.
type Options struct {
	// SkipRedis leaves the runtime without cache, notifier and rate limits.
	SkipRedis bool
	// SkipUploads leaves Uploader nil; tools that never receive files set it.
	SkipUploads bool
}

// InitRuntime connects the configured post store, redis and upload backend.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	observability.SetGlobalLogger(middleware.Logger)

	rt := &Runtime{}
	posts, err := rt.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if !opts.SkipRedis {
		cache.InitRedis(cfg.RedisURL)
		rt.Redis = cache.GetClient()
		if rt.Redis != nil {
			rdb := rt.Redis
			rt.closers = append(rt.closers, func(context.Context) error { return rdb.Close() })
		}
	}
	rt.Posts = repository.NewCachedPostRepository(posts, rt.Redis)

	if !opts.SkipUploads {
		backend, err := NewUploadBackend(cfg)
		if err != nil {
			_ = rt.Close(ctx)
			return nil, err
		}
		if local, ok := backend.(*upload.LocalBackend); ok {
			rt.MediaDir = local.Dir()
		}
		rt.Uploader = upload.New(backend, cfg.UploadFolder, cfg.UploadTimeout())
	}

	middleware.Logger.Info("runtime initialized",
		slog.String("store", cfg.StoreDriver),
		slog.Bool("redis", rt.Redis != nil),
		slog.String("upload_backend", cfg.UploadBackend),
	)
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context, cfg *config.Config) (repository.PostRepository, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, db, err := database.ConnectMongo(connectCtx, cfg)
		if err != nil {
			return nil, fmt.Errorf("mongo connection failed: %w", err)
		}
		rt.closers = append(rt.closers, client.Disconnect)
		return repository.NewMongoPostRepository(db.Collection(database.PostsCollection)), nil

	case config.StorePostgres, config.StoreSQLite:
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		})
		return repository.NewGormPostRepository(db), nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

// NewUploadBackend builds the blob backend named by UPLOAD_BACKEND.
func NewUploadBackend(cfg *config.Config) (upload.Backend, error) {
	switch cfg.UploadBackend {
	case config.UploadLocal:
		return upload.NewLocalBackend(cfg.UploadDir, cfg.PublicBaseURL), nil
	case config.UploadCloudinary:
		b, err := upload.NewCloudinaryBackend(cfg.CloudinaryURL)
		if err != nil {
			return nil, fmt.Errorf("cloudinary init failed: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown UPLOAD_BACKEND %q", cfg.UploadBackend)
}

// Close releases redis and the store connection, newest first.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
