package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *User) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	// FindByLogin matches username or email, case-insensitively.
	FindByLogin(ctx context.Context, db *gorm.DB, login string) (*User, error)
	Exists(ctx context.Context, db *gorm.DB, username, email string) (bool, error)
	ListRoles(ctx context.Context, db *gorm.DB) ([]RoleRow, error)
	UpdateRole(ctx context.Context, db *gorm.DB, id snowflake.ID, role Role) error
}
