// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"time"

	"minisocial/internal/models"

	"github.com/google/uuid"
)

// PostRepository defines the interface for post data operations.
// Lookups by an unknown id return models.ErrPostNotFound.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	// List returns posts newest first.
	List(ctx context.Context, limit, offset int) ([]*models.Post, error)
	// ToggleLike adds userID to the post's likes, or removes it if present,
	// in one atomic step and returns the post as it is afterwards.
	ToggleLike(ctx context.Context, postID string, userID uint) (*models.Post, error)
	// AddComment appends a comment atomically and returns the updated post.
	AddComment(ctx context.Context, postID string, comment models.Comment) (*models.Post, error)
	Update(ctx context.Context, id string, update models.PostUpdate) (*models.Post, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// prepareNew fills the id and timestamps of a post about to be inserted.
// Timestamps are kept at millisecond precision so every driver round-trips them identically.
func prepareNew(post *models.Post) {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now()
	}
	post.CreatedAt = post.CreatedAt.UTC().Truncate(time.Millisecond)
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	post.Likes = []uint{}
	post.Comments = []models.Comment{}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
