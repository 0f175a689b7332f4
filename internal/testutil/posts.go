package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"minisocial/internal/models"

	"github.com/google/uuid"
)

// PostRepoStub is an in-memory repository.PostRepository. Setting Err makes
// every call fail with it.
type PostRepoStub struct {
	mu    sync.Mutex
	posts map[string]*models.Post
	Err   error
}

// NewPostRepoStub creates an empty in-memory post repository.
func NewPostRepoStub() *PostRepoStub {
	return &PostRepoStub{posts: make(map[string]*models.Post)}
}

func clonePost(p *models.Post) *models.Post {
	cp := *p
	cp.Likes = append([]uint{}, p.Likes...)
	cp.Comments = append([]models.Comment{}, p.Comments...)
	return &cp
}

// Create stores a copy of post, assigning an id and timestamps when missing.
func (s *PostRepoStub) Create(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	post.Likes = []uint{}
	post.Comments = []models.Comment{}
	s.posts[post.ID] = clonePost(post)
	return nil
}

func (s *PostRepoStub) GetByID(_ context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.posts[id]
	if !ok {
		return nil, models.ErrPostNotFound
	}
	return clonePost(p), nil
}

func (s *PostRepoStub) List(_ context.Context, limit, offset int) ([]*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	all := make([]*models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	out := []*models.Post{}
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, clonePost(all[i]))
	}
	return out, nil
}

func (s *PostRepoStub) mutate(id string, fn func(p *models.Post)) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	p, ok := s.posts[id]
	if !ok {
		return nil, models.ErrPostNotFound
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	return clonePost(p), nil
}

func (s *PostRepoStub) ToggleLike(_ context.Context, postID string, userID uint) (*models.Post, error) {
	return s.mutate(postID, func(p *models.Post) {
		for i, id := range p.Likes {
			if id == userID {
				p.Likes = append(p.Likes[:i], p.Likes[i+1:]...)
				return
			}
		}
		p.Likes = append(p.Likes, userID)
	})
}

func (s *PostRepoStub) AddComment(_ context.Context, postID string, comment models.Comment) (*models.Post, error) {
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	return s.mutate(postID, func(p *models.Post) {
		p.Comments = append(p.Comments, comment)
	})
}

func (s *PostRepoStub) Update(_ context.Context, id string, update models.PostUpdate) (*models.Post, error) {
	return s.mutate(id, func(p *models.Post) {
		if update.Content != nil {
			p.Content = *update.Content
		}
		if update.Image != nil {
			p.Image = *update.Image
		}
	})
}

func (s *PostRepoStub) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.posts[id]; !ok {
		return models.ErrPostNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *PostRepoStub) Ping(context.Context) error {
	return s.Err
}

// Len reports how many posts are stored.
func (s *PostRepoStub) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}
