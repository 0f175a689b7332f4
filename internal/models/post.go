// Package models contains data structures for the application's domain models.
package models

import (
	"time"
)

// Post is a feed entry. The same struct is persisted by the relational
// (gorm) and document (mongo) stores.
type Post struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	AuthorID   uint      `gorm:"not null;index" bson:"authorId" json:"author_id"`
	AuthorName string    `gorm:"not null;default:''" bson:"authorName" json:"author_name"`
	Content    string    `gorm:"type:text;not null;default:''" bson:"content" json:"content"`
	Image      string    `gorm:"not null;default:''" bson:"image" json:"image"`
	Likes      []uint    `gorm:"-" bson:"likes" json:"likes"`
	Comments   []Comment `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" bson:"comments" json:"comments"`
	CreatedAt  time.Time `gorm:"index" bson:"createdAt" json:"created_at"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updated_at"`

	// LikeRecords backs Likes in the relational store.
	LikeRecords []PostLike `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" bson:"-" json:"-"`
}

// Comment is an entry in a post's comment thread.
type Comment struct {
	ID        uint      `gorm:"primaryKey" bson:"-" json:"-"`
	PostID    string    `gorm:"type:varchar(36);not null;index" bson:"-" json:"-"`
	UserID    uint      `gorm:"not null" bson:"userId" json:"user_id"`
	Username  string    `gorm:"not null;default:''" bson:"username" json:"username"`
	Text      string    `gorm:"type:text;not null" bson:"text" json:"text"`
	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

// PostLike records that a user likes a post. The composite primary key keeps
// a user from appearing twice in a post's likes.
type PostLike struct {
	PostID    string    `gorm:"primaryKey;type:varchar(36)"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"index"`
}

// PostUpdate carries the fields an edit replaces. Nil fields are left alone.
type PostUpdate struct {
	Content *string
	Image   *string
}

// Empty reports whether the update would change nothing.
func (u PostUpdate) Empty() bool {
	return u.Content == nil && u.Image == nil
}

// Identity is the authenticated caller as asserted by the auth token.
type Identity struct {
	UserID   uint
	Username string
}

// Normalize replaces nil slices so the JSON form always carries arrays.
func (p *Post) Normalize() {
	if p.Likes == nil {
		p.Likes = []uint{}
	}
	if p.Comments == nil {
		p.Comments = []Comment{}
	}
}

// HasLike reports whether userID is in the post's likes.
func (p *Post) HasLike(userID uint) bool {
	for _, id := range p.Likes {
		if id == userID {
			return true
		}
	}
	return false
}
