package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base carries the GORM handle shared by every domain repository.
type Base struct {
	db *gorm.DB
}

// NewBase wraps a GORM connection for embedding in repositories.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB binds the connection to the request context when one is given.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}
