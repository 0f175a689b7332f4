package seed

import (
	"context"
	"errors"
	"fmt"
	"log"

	"minisocial/internal/models"
	"minisocial/internal/repository"
)

// Options configuration for the seeder
type Options struct {
	NumUsers    int
	NumPosts    int
	ShouldClean bool
	// DryRun builds everything but writes nothing.
	DryRun bool
	// MaxDays bounds how far back created_at is spread.
	MaxDays int
	// MaxLikes and MaxComments cap engagement per post.
	MaxLikes    int
	MaxComments int
	// RandSeed makes runs reproducible when non-zero.
	RandSeed int64
}

// Distribution weights the post kinds in percent.
type Distribution struct {
	Text  int
	Image int
	Mixed int
	Empty int
}

var defaultDistribution = Distribution{Text: 60, Image: 20, Mixed: 15, Empty: 5}

// computeCounts splits total by the distribution; rounding leftovers go to text.
func computeCounts(total int, d Distribution) (text, image, mixed, empty int) {
	image = total * d.Image / 100
	mixed = total * d.Mixed / 100
	empty = total * d.Empty / 100
	text = total - image - mixed - empty
	return text, image, mixed, empty
}

// Summary reports what a run created.
type Summary struct {
	Deleted  int
	Posts    int
	Likes    int
	Comments int
}

// Seeder fills a post store with fake authors, posts and engagement.
type Seeder struct {
	posts   repository.PostRepository
	opts    Options
	factory *Factory
}

// NewSeeder creates a seeder writing through posts.
func NewSeeder(posts repository.PostRepository, opts Options) *Seeder {
	if opts.MaxLikes <= 0 {
		opts.MaxLikes = 8
	}
	if opts.MaxComments <= 0 {
		opts.MaxComments = 4
	}
	return &Seeder{posts: posts, opts: opts, factory: NewFactory(posts, opts)}
}

// Run seeds the store according to the seeder's options.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	log.Printf("🌱 Seeding %d posts from %d users (clean=%v)", s.opts.NumPosts, s.opts.NumUsers, s.opts.ShouldClean)

	if s.opts.ShouldClean && !s.opts.DryRun {
		n, err := s.ClearAll(ctx)
		if err != nil {
			return sum, fmt.Errorf("failed to clear posts: %w", err)
		}
		sum.Deleted = n
		log.Printf("✓ %d existing posts removed", n)
	}

	users := s.users()
	if len(users) == 0 {
		return sum, errors.New("at least one user is required")
	}

	text, image, mixed, empty := computeCounts(s.opts.NumPosts, defaultDistribution)
	kinds := make([]string, 0, s.opts.NumPosts)
	for _, kc := range []struct {
		kind string
		n    int
	}{{KindText, text}, {KindImage, image}, {KindMixed, mixed}, {KindEmpty, empty}} {
		for i := 0; i < kc.n; i++ {
			kinds = append(kinds, kc.kind)
		}
	}

	rng := s.factory.rng
	for _, kind := range kinds {
		author := users[rng.Intn(len(users))]
		post, err := s.factory.CreatePost(ctx, author, kind)
		if err != nil {
			return sum, fmt.Errorf("failed to create post: %w", err)
		}
		sum.Posts++

		// Likes come from distinct users so no toggle cancels another.
		likes := rng.Intn(min(s.opts.MaxLikes, len(users)) + 1)
		for _, i := range rng.Perm(len(users))[:likes] {
			if err := s.factory.Like(ctx, post, users[i].UserID); err != nil {
				return sum, fmt.Errorf("failed to like post: %w", err)
			}
			sum.Likes++
		}

		for i := rng.Intn(s.opts.MaxComments + 1); i > 0; i-- {
			if err := s.factory.Comment(ctx, post, users[rng.Intn(len(users))]); err != nil {
				return sum, fmt.Errorf("failed to comment: %w", err)
			}
			sum.Comments++
		}
	}

	log.Printf("✓ %d posts, %d likes, %d comments", sum.Posts, sum.Likes, sum.Comments)
	return sum, nil
}

func (s *Seeder) users() []models.Identity {
	out := make([]models.Identity, 0, s.opts.NumUsers)
	for i := 1; i <= s.opts.NumUsers; i++ {
		out = append(out, s.factory.Identity(uint(i)))
	}
	return out
}

// ClearAll deletes every post through the repository, page by page.
func (s *Seeder) ClearAll(ctx context.Context) (int, error) {
	deleted := 0
	for {
		page, err := s.posts.List(ctx, 100, 0)
		if err != nil {
			return deleted, err
		}
		if len(page) == 0 {
			return deleted, nil
		}
		for _, p := range page {
			if err := s.posts.Delete(ctx, p.ID); err != nil && !errors.Is(err, models.ErrPostNotFound) {
				return deleted, err
			}
			deleted++
		}
	}
}
