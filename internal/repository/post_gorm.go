package repository

import (
	"context"
	"errors"
	"log/slog"

	"minisocial/internal/models"
	"minisocial/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormPostRepository keeps posts in three tables: posts, comments and
// post_likes. The like table's composite key makes a duplicate liker impossible.
type gormPostRepository struct {
	db     *gorm.DB
	driver string
	log    *observability.RepoLogger
}

// NewGormPostRepository creates a post repository over a postgres or sqlite connection.
func NewGormPostRepository(db *gorm.DB) PostRepository {
	driver := db.Dialector.Name()
	return &gormPostRepository{
		db:     db,
		driver: driver,
		log:    observability.NewRepoLogger(driver, "posts"),
	}
}

func withPostDetails(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("LikeRecords", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		})
}

// flatten copies like rows into Post.Likes.
func flatten(p *models.Post) {
	p.Likes = make([]uint, 0, len(p.LikeRecords))
	for _, l := range p.LikeRecords {
		p.Likes = append(p.Likes, l.UserID)
	}
	p.LikeRecords = nil
	p.Normalize()
}

func (r *gormPostRepository) load(ctx context.Context, db *gorm.DB, id string) (*models.Post, error) {
	var post models.Post
	if err := withPostDetails(db.WithContext(ctx)).First(&post, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrPostNotFound
		}
		return nil, err
	}
	flatten(&post)
	return &post, nil
}

// touch bumps updated_at and doubles as the existence check for in-place mutations.
func touch(tx *gorm.DB, id string) error {
	res := tx.Model(&models.Post{}).Where("id = ?", id).Update("updated_at", now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrPostNotFound
	}
	return nil
}

func (r *gormPostRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery(r.driver, "create")()

	prepareNew(post)
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		r.log.LogError(ctx, err, "create")
		return err
	}
	r.log.LogCreate(ctx, slog.String("post_id", post.ID), slog.Uint64("author_id", uint64(post.AuthorID)))
	return nil
}

func (r *gormPostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	defer observability.TrackQuery(r.driver, "get")()
	return r.load(ctx, r.db, id)
}

func (r *gormPostRepository) List(ctx context.Context, limit, offset int) ([]*models.Post, error) {
	defer observability.TrackQuery(r.driver, "list")()

	var posts []*models.Post
	err := withPostDetails(r.db.WithContext(ctx)).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		flatten(p)
	}
	return posts, nil
}

func (r *gormPostRepository) ToggleLike(ctx context.Context, postID string, userID uint) (*models.Post, error) {
	defer observability.TrackQuery(r.driver, "toggle_like")()

	var post *models.Post
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := touch(tx, postID); err != nil {
			return err
		}

		res := tx.Where("post_id = ? AND user_id = ?", postID, userID).Delete(&models.PostLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			like := models.PostLike{PostID: postID, UserID: userID, CreatedAt: now()}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like).Error; err != nil {
				return err
			}
		}

		var err error
		post, err = r.load(ctx, tx, postID)
		return err
	})
	if err != nil {
		if !errors.Is(err, models.ErrPostNotFound) {
			r.log.LogError(ctx, err, "toggle_like")
		}
		return nil, err
	}
	r.log.LogUpdate(ctx, slog.String("post_id", postID), slog.String("field", "likes"))
	return post, nil
}

func (r *gormPostRepository) AddComment(ctx context.Context, postID string, comment models.Comment) (*models.Post, error) {
	defer observability.TrackQuery(r.driver, "add_comment")()

	comment.ID = 0
	comment.PostID = postID
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = now()
	}

	var post *models.Post
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := touch(tx, postID); err != nil {
			return err
		}
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}
		var err error
		post, err = r.load(ctx, tx, postID)
		return err
	})
	if err != nil {
		if !errors.Is(err, models.ErrPostNotFound) {
			r.log.LogError(ctx, err, "add_comment")
		}
		return nil, err
	}
	r.log.LogUpdate(ctx, slog.String("post_id", postID), slog.String("field", "comments"))
	return post, nil
}

func (r *gormPostRepository) Update(ctx context.Context, id string, update models.PostUpdate) (*models.Post, error) {
	defer observability.TrackQuery(r.driver, "update")()

	if update.Empty() {
		return r.load(ctx, r.db, id)
	}

	fields := map[string]interface{}{"updated_at": now()}
	if update.Content != nil {
		fields["content"] = *update.Content
	}
	if update.Image != nil {
		fields["image"] = *update.Image
	}

	res := r.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		r.log.LogError(ctx, res.Error, "update")
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, models.ErrPostNotFound
	}
	r.log.LogUpdate(ctx, slog.String("post_id", id))
	return r.load(ctx, r.db, id)
}

func (r *gormPostRepository) Delete(ctx context.Context, id string) error {
	defer observability.TrackQuery(r.driver, "delete")()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&models.PostLike{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Post{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrPostNotFound
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, models.ErrPostNotFound) {
			r.log.LogError(ctx, err, "delete")
		}
		return err
	}
	r.log.LogDelete(ctx, slog.String("post_id", id))
	return nil
}

func (r *gormPostRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
