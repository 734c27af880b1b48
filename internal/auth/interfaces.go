package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/database/models"
)

// Authenticator defines the interface for user authentication operations.
type Authenticator interface {
	Login(ctx context.Context, input LoginInput) (*AuthResponse, error)
	Activate(ctx context.Context, token, password string) (*AuthResponse, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
	ChangePassword(ctx context.Context, p Principal, current, next string) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenService defines the interface for JWT token operations.
type TokenService interface {
	GenerateToken(userID uuid.UUID, email string, role models.Role) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator = (*Service)(nil)
	_ TokenService  = (*JWTService)(nil)
	_ Throttle      = (*RedisThrottle)(nil)
)
