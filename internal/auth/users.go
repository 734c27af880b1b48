package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/database/models"
)

type UserFilter struct {
	Role   models.Role
	Search string
	Offset int
	Limit  int
}

// ListUsers is admin only and includes inactive accounts.
func (s *Service) ListUsers(ctx context.Context, actor Principal, f UserFilter) ([]models.User, int64, error) {
	if !actor.IsAdmin() {
		return nil, 0, ErrForbidden
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if f.Role != "" {
		query = query.Where("role = ?", f.Role)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}

	var users []models.User
	if err := query.Order("name, email").Offset(f.Offset).Limit(f.Limit).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	return users, total, nil
}

// DirectoryEntry is what any signed-in user may see about a colleague.
type DirectoryEntry struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// Directory lists active users for the participant picker.
func (s *Service) Directory(ctx context.Context, search string) ([]DirectoryEntry, error) {
	query := s.db.WithContext(ctx).Model(&models.User{}).Where("is_active = ?", true)
	if q := strings.TrimSpace(search); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var entries []DirectoryEntry
	if err := query.Select("id", "name", "email").Order("name, email").Limit(500).Scan(&entries).Error; err != nil {
		return nil, fmt.Errorf("loading directory: %w", err)
	}
	return entries, nil
}
