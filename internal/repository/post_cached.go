package repository

import (
	"context"
	"errors"
	"log/slog"

	"minisocial/internal/cache"
	"minisocial/internal/middleware"
	"minisocial/internal/models"
	"minisocial/internal/observability"

	"github.com/redis/go-redis/v9"
)

// cachedPostRepository serves GetByID from redis and drops the cached copy
// on every mutation. Redis errors fall through to the wrapped store.
// Each mutation bumps a per-post generation; a fill only lands if the
// generation it read before loading is still current.
type cachedPostRepository struct {
	PostRepository
	rdb *redis.Client
}

// NewCachedPostRepository wraps inner with a read-through post cache.
// With a nil client it returns inner unchanged.
func NewCachedPostRepository(inner PostRepository, rdb *redis.Client) PostRepository {
	if rdb == nil {
		return inner
	}
	return &cachedPostRepository{PostRepository: inner, rdb: rdb}
}

func (r *cachedPostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	key := cache.PostKey(id)

	var post models.Post
	err := cache.GetJSON(ctx, r.rdb, key, &post)
	if err == nil {
		observability.CacheLookups.WithLabelValues("hit").Inc()
		post.Normalize()
		return &post, nil
	}
	observability.CacheLookups.WithLabelValues("miss").Inc()
	if !errors.Is(err, cache.ErrMiss) {
		middleware.Logger.WarnContext(ctx, "post cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}

	genKey := cache.PostGenKey(id)
	gen, genErr := cache.Generation(ctx, r.rdb, genKey)

	fresh, err := r.PostRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return fresh, nil
	}
	stored, err := cache.SetJSONAtGeneration(ctx, r.rdb, key, genKey, gen, fresh, cache.PostTTL)
	if err != nil {
		middleware.Logger.WarnContext(ctx, "post cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	} else if !stored {
		middleware.Logger.DebugContext(ctx, "post cache fill skipped after concurrent write", slog.String("key", key))
	}
	return fresh, nil
}

func (r *cachedPostRepository) invalidate(ctx context.Context, id string) {
	if err := cache.BumpAndInvalidate(ctx, r.rdb, cache.PostGenKey(id), cache.PostTTL, cache.PostKey(id)); err != nil {
		middleware.Logger.WarnContext(ctx, "post cache invalidation failed", slog.String("post_id", id), slog.String("error", err.Error()))
	}
}

func (r *cachedPostRepository) ToggleLike(ctx context.Context, postID string, userID uint) (*models.Post, error) {
	post, err := r.PostRepository.ToggleLike(ctx, postID, userID)
	if err == nil {
		r.invalidate(ctx, postID)
	}
	return post, err
}

func (r *cachedPostRepository) AddComment(ctx context.Context, postID string, comment models.Comment) (*models.Post, error) {
	post, err := r.PostRepository.AddComment(ctx, postID, comment)
	if err == nil {
		r.invalidate(ctx, postID)
	}
	return post, err
}

func (r *cachedPostRepository) Update(ctx context.Context, id string, update models.PostUpdate) (*models.Post, error) {
	post, err := r.PostRepository.Update(ctx, id, update)
	if err == nil {
		r.invalidate(ctx, id)
	}
	return post, err
}

func (r *cachedPostRepository) Delete(ctx context.Context, id string) error {
	err := r.PostRepository.Delete(ctx, id)
	if err == nil || errors.Is(err, models.ErrPostNotFound) {
		r.invalidate(ctx, id)
	}
	return err
}
