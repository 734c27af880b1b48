package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrAuditLogImmutable = errors.New("audit log entries are append-only")

// AuditLog has no UpdatedAt or DeletedAt: rows are written once and never touched.
type AuditLog struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	UserID       *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Action       string     `gorm:"not null;index" json:"action"`
	ResourceType string     `gorm:"not null;index:idx_audit_resource,priority:1" json:"resource_type"`
	ResourceID   string     `gorm:"index:idx_audit_resource,priority:2" json:"resource_id"`
	Details      string     `gorm:"type:text" json:"details"`
	IPAddress    string     `json:"ip_address,omitempty"`
	CreatedAt    time.Time  `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error {
	return ErrAuditLogImmutable
}

func (a *AuditLog) BeforeDelete(tx *gorm.DB) error {
	return ErrAuditLogImmutable
}
