// Package seed provides helpers to create demo feed data. These helpers are
// intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"minisocial/internal/models"
	"minisocial/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
)

// Post kinds produced by the factory.
const (
	KindText  = "text"
	KindImage = "image"
	KindMixed = "mixed"
	KindEmpty = "empty"
)

// Factory builds feed entities and persists them through a PostRepository.
type Factory struct {
	posts repository.PostRepository
	opts  Options
	rng   *rand.Rand
	// synthetic ID counter when running in DryRun mode
	nextID int
}

// NewFactory creates a new Factory bound to the provided repository.
func NewFactory(posts repository.PostRepository, opts Options) *Factory {
	seed := opts.RandSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gofakeit.Seed(seed)
	return &Factory{posts: posts, opts: opts, rng: rand.New(rand.NewSource(seed))}
}

// Identity returns a fake author. IDs start at 1 so none collides with the
// anonymous socket user.
func (f *Factory) Identity(id uint) models.Identity {
	return models.Identity{
		UserID:   id,
		Username: gofakeit.Username() + fmt.Sprintf("%d", gofakeit.Number(100, 999)),
	}
}

// BuildPost constructs a post of the given kind without persisting it.
func (f *Factory) BuildPost(author models.Identity, kind string, overrides ...func(*models.Post)) *models.Post {
	post := &models.Post{
		AuthorID:   author.UserID,
		AuthorName: author.Username,
	}

	switch kind {
	case KindImage:
		post.Image = f.imageURL()
	case KindMixed:
		post.Content = gofakeit.Paragraph(1, 2, 8, " ")
		post.Image = f.imageURL()
	case KindEmpty:
	default:
		post.Content = gofakeit.Paragraph(1, 3, 10, " ")
	}

	// realistic created_at spread
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 30
	}
	back := time.Duration(f.rng.Intn(maxDays))*24*time.Hour +
		time.Duration(f.rng.Intn(24))*time.Hour +
		time.Duration(f.rng.Intn(60))*time.Minute
	post.CreatedAt = time.Now().UTC().Add(-back)
	post.UpdatedAt = post.CreatedAt

	for _, override := range overrides {
		override(post)
	}
	return post
}

func (f *Factory) imageURL() string {
	return fmt.Sprintf("https://picsum.photos/seed/%s/800/800", gofakeit.UUID())
}

// CreatePost builds and persists a post.
func (f *Factory) CreatePost(ctx context.Context, author models.Identity, kind string, overrides ...func(*models.Post)) (*models.Post, error) {
	post := f.BuildPost(author, kind, overrides...)
	if f.opts.DryRun {
		f.nextID++
		post.ID = fmt.Sprintf("dry-run-%d", f.nextID)
		log.Printf("[dry-run] CreatePost: kind=%s author=%d", kind, post.AuthorID)
		return post, nil
	}
	if err := f.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Like toggles a like from user on post. In DryRun mode it only logs.
func (f *Factory) Like(ctx context.Context, post *models.Post, user uint) error {
	if f.opts.DryRun {
		return nil
	}
	_, err := f.posts.ToggleLike(ctx, post.ID, user)
	return err
}

// Comment adds a short fake comment from user to post.
func (f *Factory) Comment(ctx context.Context, post *models.Post, user models.Identity) error {
	if f.opts.DryRun {
		return nil
	}
	_, err := f.posts.AddComment(ctx, post.ID, models.Comment{
		UserID:    user.UserID,
		Username:  user.Username,
		Text:      gofakeit.Sentence(f.rng.Intn(10) + 3),
		CreatedAt: time.Now().UTC(),
	})
	return err
}
