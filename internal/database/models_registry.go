package database

import "minisocial/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Post{},
		&models.Comment{},
		&models.PostLike{},
	}
}
