package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/leadgate/leadgate/internal/gatelink/domain"
	"gorm.io/gorm"
)

const userColumns = `id, username, email, role, password_hash, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.Role,
		user.PasswordHash,
		user.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+` FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) FindByLogin(ctx context.Context, db *gorm.DB, login string) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+`
		 FROM users
		 WHERE LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)
		 ORDER BY id ASC
		 LIMIT 1`,
		login,
		login,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) Exists(ctx context.Context, db *gorm.DB, username, email string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM users WHERE LOWER(username) = LOWER(?) OR LOWER(email) = LOWER(?)`,
		username,
		email,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) ListRoles(ctx context.Context, db *gorm.DB) ([]domain.RoleRow, error) {
	var rows []domain.RoleRow
	err := db.WithContext(ctx).Raw(`SELECT id, username, role FROM users ORDER BY id ASC`).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) UpdateRole(ctx context.Context, db *gorm.DB, id snowflake.ID, role domain.Role) error {
	return db.WithContext(ctx).Exec(`UPDATE users SET role = ? WHERE id = ?`, role, id).Error
}
