// Package domain holds staff accounts and the principals GateLink hands out.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type User struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Username     string       `gorm:"not null;uniqueIndex" json:"username"`
	Email        string       `gorm:"not null;uniqueIndex" json:"email"`
	Role         Role         `gorm:"type:text;not null" json:"role"`
	PasswordHash string       `gorm:"not null" json:"-"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
}

func (User) TableName() string { return "users" }

func (u User) Principal() UserPrincipal {
	return UserPrincipal{UserID: u.ID, Username: u.Username, Role: u.Role}
}

// RoleRow is a raw users.role value as stored, before normalization.
type RoleRow struct {
	ID       snowflake.ID `gorm:"column:id"`
	Username string       `gorm:"column:username"`
	Role     string       `gorm:"column:role"`
}
