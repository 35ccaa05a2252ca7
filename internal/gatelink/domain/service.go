package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateUserRequest struct {
	Username string
	Email    string
	Password string
	Role     string
}

type LoginRequest struct {
	// Login is a username or an email address. Brokers log in by email.
	Login    string
	Password string
}

type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Principal   Principal `json:"-"`
}

type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (User, error)
	SetBrokerPassword(ctx context.Context, brokerID snowflake.ID, password string) error
	// Login tries staff accounts first and brokers second.
	Login(ctx context.Context, req LoginRequest) (LoginResult, error)
	// Authenticate verifies the token and reloads the principal, so deleted
	// accounts and changed roles take effect immediately.
	Authenticate(ctx context.Context, token string) (Principal, error)
}

var (
	ErrInvalidRole        = errors.New("invalid_role")
	ErrInvalidUsername    = errors.New("invalid_username")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrWeakPassword       = errors.New("weak_password")
	ErrUserExists         = errors.New("user_exists")
	ErrBrokerNotFound     = errors.New("broker_not_found")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrRateLimited        = errors.New("rate_limited")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrNotConfigured      = errors.New("auth_not_configured")
)
