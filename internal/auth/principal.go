package auth

import (
	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/database/models"
)

// Principal is the request-scoped identity passed into every service call.
type Principal struct {
	UserID uuid.UUID
	Role   models.Role
}

func (p Principal) Authenticated() bool {
	return p.UserID != uuid.Nil && p.Role.Valid()
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// CanWrite is false for viewers, who only browse.
func (p Principal) CanWrite() bool {
	return p.Role == models.RoleAdmin || p.Role == models.RoleUser
}

// CanManage reports whether p may mutate something owned by ownerID.
func (p Principal) CanManage(ownerID uuid.UUID) bool {
	if p.IsAdmin() {
		return true
	}
	return p.CanWrite() && p.UserID == ownerID
}
