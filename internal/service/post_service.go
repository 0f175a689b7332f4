// Package service holds the post lifecycle rules that sit between the HTTP
// handlers and the repository.
package service

import (
	"context"
	"errors"
	"math"

	"minisocial/internal/models"
	"minisocial/internal/observability"
	"minisocial/internal/repository"
	"minisocial/internal/upload"

	"go.opentelemetry.io/otel/attribute"
)

// Feed page bounds.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 50
)

// ErrNoUploader is wrapped in the UploadError returned when an image
// arrives but no upload backend is configured.
var ErrNoUploader = errors.New("image uploads are not configured")

type PostService struct {
	posts    repository.PostRepository
	uploader *upload.Uploader
}

// Image is an uploaded file held in memory.
type Image struct {
	Data        []byte
	Filename    string
	ContentType string
}

type CreatePostInput struct {
	Author  models.Identity
	Content string
	Image   *Image
}

type UpdatePostInput struct {
	Caller  models.Identity
	PostID  string
	Content string
	Image   *Image
}

// NewPostService builds the service. uploader may be nil, in which case
// requests carrying an image fail with an UploadError.
func NewPostService(posts repository.PostRepository, uploader *upload.Uploader) *PostService {
	return &PostService{posts: posts, uploader: uploader}
}

func (s *PostService) uploadImage(ctx context.Context, img *Image) (string, error) {
	if s.uploader == nil {
		return "", &upload.UploadError{Backend: "none", Err: ErrNoUploader}
	}
	res, err := s.uploader.Upload(ctx, img.Data, upload.Options{
		Filename:    img.Filename,
		ContentType: img.ContentType,
	})
	if err != nil {
		return "", err
	}
	return res.URL, nil
}

// CreatePost uploads the optional image, stores the post and returns it as
// persisted. Posts with neither text nor image are accepted.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	ctx, span := observability.StartSpan(ctx, "service", "CreatePost",
		attribute.Int64("user.id", int64(in.Author.UserID)),
		attribute.Bool("post.has_image", in.Image != nil),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	imageURL := ""
	if in.Image != nil {
		if imageURL, err = s.uploadImage(ctx, in.Image); err != nil {
			return nil, err
		}
	}

	post := &models.Post{
		AuthorID:   in.Author.UserID,
		AuthorName: in.Author.Username,
		Content:    in.Content,
		Image:      imageURL,
	}
	if err = s.posts.Create(ctx, post); err != nil {
		return nil, err
	}

	var created *models.Post
	created, err = s.posts.GetByID(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListPosts returns one feed page, newest first.
func (s *PostService) ListPosts(ctx context.Context, page, limit int) ([]*models.Post, error) {
	page, limit = NormalizePage(page, limit)
	if page-1 > math.MaxInt/limit {
		// The offset would overflow; nothing lives that far back.
		return []*models.Post{}, nil
	}
	posts, err := s.posts.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return posts, nil
}

// NormalizePage applies the feed defaults to non-positive values and caps limit.
func NormalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func (s *PostService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return s.posts.GetByID(ctx, id)
}

// ToggleLike likes the post for the caller, or unlikes it if already liked.
func (s *PostService) ToggleLike(ctx context.Context, caller models.Identity, postID string) (*models.Post, error) {
	ctx, span := observability.StartSpan(ctx, "service", "ToggleLike",
		attribute.String("post.id", postID),
		attribute.Int64("user.id", int64(caller.UserID)),
	)
	post, err := s.posts.ToggleLike(ctx, postID, caller.UserID)
	if err == nil {
		span.SetAttributes(attribute.Bool("post.liked", post.HasLike(caller.UserID)))
	}
	observability.EndSpan(span, err)
	return post, err
}

// AddComment appends a comment by the caller. Empty text is rejected before
// the post is looked up.
func (s *PostService) AddComment(ctx context.Context, caller models.Identity, postID, text string) (*models.Post, error) {
	if text == "" {
		return nil, models.NewValidationError("Empty comment")
	}
	return s.posts.AddComment(ctx, postID, models.Comment{
		UserID:   caller.UserID,
		Username: caller.Username,
		Text:     text,
	})
}

// Authorize loads the post and checks that caller wrote it. Handlers call it
// before looking at the payload so a stranger gets 403 whatever they send.
func (s *PostService) Authorize(ctx context.Context, caller models.Identity, postID string) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != caller.UserID {
		return nil, models.NewForbiddenError("Unauthorized")
	}
	return post, nil
}

// UpdatePost edits a post owned by the caller. Empty content leaves the text
// unchanged; a new image replaces the URL and the old blob is left in place.
func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	ctx, span := observability.StartSpan(ctx, "service", "UpdatePost",
		attribute.String("post.id", in.PostID),
		attribute.Int64("user.id", int64(in.Caller.UserID)),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	var post *models.Post
	if post, err = s.Authorize(ctx, in.Caller, in.PostID); err != nil {
		return nil, err
	}

	var upd models.PostUpdate
	if in.Content != "" {
		content := in.Content
		upd.Content = &content
	}
	if in.Image != nil {
		var url string
		if url, err = s.uploadImage(ctx, in.Image); err != nil {
			return nil, err
		}
		upd.Image = &url
	}
	if upd.Empty() {
		return post, nil
	}

	post, err = s.posts.Update(ctx, in.PostID, upd)
	if err != nil {
		return nil, err
	}
	return post, nil
}

// DeletePost removes a post owned by the caller.
func (s *PostService) DeletePost(ctx context.Context, caller models.Identity, postID string) error {
	if _, err := s.Authorize(ctx, caller, postID); err != nil {
		return err
	}
	return s.posts.Delete(ctx, postID)
}
