package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/database/models"
	"gorm.io/gorm"
)

const (
	ActionBookingCreate     = "booking.create"
	ActionBookingUpdate     = "booking.update"
	ActionBookingCancel     = "booking.cancel"
	ActionBookingConfirm    = "booking.confirm"
	ActionBookingAttachment = "booking.attachment"
	ActionRoomCreate        = "room.create"
	ActionRoomUpdate        = "room.update"
	ActionRoomDeactivate    = "room.deactivate"
	ActionUserCreate        = "user.create"
	ActionUserUpdate        = "user.update"
	ActionUserActivate      = "user.activate"
	ActionUserLogin         = "user.login"
	ActionPasswordChange    = "user.password_change"
	ActionPasswordReset     = "user.password_reset"
	ActionEmailSettings     = "settings.email_update"
	ActionCalendarLink      = "calendar.credential_update"
	ActionCalendarUnlink    = "calendar.credential_delete"
)

const (
	ResourceBooking  = "booking"
	ResourceRoom     = "room"
	ResourceUser     = "user"
	ResourceSettings = "settings"
	ResourceCalendar = "calendar_credential"
)

type Entry struct {
	ActorID      uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Details      any
}

// Recorder appends audit rows. A nil *Recorder is valid and records nothing.
type Recorder struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRecorder(db *gorm.DB, logger *slog.Logger) *Recorder {
	return &Recorder{db: db, logger: logger}
}

// Record writes synchronously. Failures are logged and swallowed: the state
// change being audited has already been committed.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil {
		return
	}

	row := models.AuditLog{
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		IPAddress:    ipFromContext(ctx),
	}
	if e.ActorID != uuid.Nil {
		actor := e.ActorID
		row.UserID = &actor
	}
	if e.Details != nil {
		details, err := json.Marshal(e.Details)
		if err != nil {
			r.logger.Warn("audit details not serializable", "action", e.Action, "error", err)
		} else {
			row.Details = string(details)
		}
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		r.logger.Error("failed to write audit log",
			"action", e.Action,
			"resource_type", e.ResourceType,
			"resource_id", e.ResourceID,
			"error", err,
		)
	}
}

type Filter struct {
	UserID       uuid.UUID
	ResourceType string
	ResourceID   string
	Action       string
	Offset       int
	Limit        int
}

// List returns newest entries first together with the unpaged total.
func (r *Recorder) List(ctx context.Context, f Filter) ([]models.AuditLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.UserID != uuid.Nil {
		query = query.Where("user_id = ?", f.UserID)
	}
	if f.ResourceType != "" {
		query = query.Where("resource_type = ?", f.ResourceType)
	}
	if f.ResourceID != "" {
		query = query.Where("resource_id = ?", f.ResourceID)
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}

	var logs []models.AuditLog
	if err := query.Order("created_at DESC").Offset(f.Offset).Limit(f.Limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

type ipKey struct{}

// ContextWithIP attaches the caller's address so entries written later in the
// request carry it.
func ContextWithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

func ipFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(ipKey{}).(string); ok {
		return ip
	}
	return ""
}
