package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/audit"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/pkg/crypto"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotLinked    = errors.New("no calendar linked")
	ErrInvalidToken = errors.New("token must include an access or refresh token")
	ErrForbidden    = errors.New("forbidden")
)

// LinkInput carries an OAuth token obtained outside this service.
type LinkInput struct {
	CalendarID   string
	AccountEmail string
	Token        oauth2.Token
}

// Credentials stores one Google token per user, encrypted at rest.
type Credentials struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
	audit     *audit.Recorder
}

func NewCredentials(db *gorm.DB, encryptor *crypto.Encryptor, recorder *audit.Recorder) *Credentials {
	return &Credentials{db: db, encryptor: encryptor, audit: recorder}
}

func (c *Credentials) Get(ctx context.Context, actor auth.Principal) (*models.CalendarCredential, error) {
	var cred models.CalendarCredential
	err := c.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", actor.UserID, models.CalendarProviderGoogle).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("loading calendar credential: %w", err)
	}
	return &cred, nil
}

// Link replaces any token the user stored before.
func (c *Credentials) Link(ctx context.Context, actor auth.Principal, input LinkInput) (*models.CalendarCredential, error) {
	if !actor.CanWrite() {
		return nil, ErrForbidden
	}
	if input.Token.AccessToken == "" && input.Token.RefreshToken == "" {
		return nil, ErrInvalidToken
	}

	encrypted, err := c.encryptor.EncryptJSON(input.Token)
	if err != nil {
		return nil, fmt.Errorf("encrypting token: %w", err)
	}

	calendarID := strings.TrimSpace(input.CalendarID)
	if calendarID == "" {
		calendarID = "primary"
	}
	cred := &models.CalendarCredential{
		UserID:         actor.UserID,
		Provider:       models.CalendarProviderGoogle,
		CalendarID:     calendarID,
		AccountEmail:   strings.ToLower(strings.TrimSpace(input.AccountEmail)),
		EncryptedToken: encrypted,
	}

	err = c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"calendar_id", "account_email", "encrypted_token", "last_error", "updated_at", "deleted_at",
		}),
	}).Create(cred).Error
	if err != nil {
		return nil, fmt.Errorf("saving calendar credential: %w", err)
	}

	c.audit.Record(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionCalendarLink,
		ResourceType: audit.ResourceCalendar,
		ResourceID:   actor.UserID.String(),
		Details:      map[string]string{"calendar_id": calendarID},
	})
	return c.Get(ctx, actor)
}

func (c *Credentials) Unlink(ctx context.Context, actor auth.Principal) error {
	res := c.db.WithContext(ctx).Unscoped().
		Where("user_id = ? AND provider = ?", actor.UserID, models.CalendarProviderGoogle).
		Delete(&models.CalendarCredential{})
	if res.Error != nil {
		return fmt.Errorf("deleting calendar credential: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotLinked
	}

	c.audit.Record(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionCalendarUnlink,
		ResourceType: audit.ResourceCalendar,
		ResourceID:   actor.UserID.String(),
	})
	return nil
}

// token loads and decrypts the stored token for userID.
func (c *Credentials) token(ctx context.Context, userID uuid.UUID) (*models.CalendarCredential, *oauth2.Token, error) {
	cred, err := c.Get(ctx, auth.Principal{UserID: userID})
	if err != nil {
		return nil, nil, err
	}
	var tok oauth2.Token
	if err := c.encryptor.DecryptJSON(cred.EncryptedToken, &tok); err != nil {
		return nil, nil, fmt.Errorf("decrypting token: %w", err)
	}
	return cred, &tok, nil
}

// record stores the sync outcome and a refreshed token when it changed.
func (c *Credentials) record(ctx context.Context, cred *models.CalendarCredential, refreshed *oauth2.Token, syncErr error) error {
	updates := map[string]any{"last_error": ""}
	if syncErr != nil {
		updates["last_error"] = syncErr.Error()
	} else {
		updates["last_sync_at"] = time.Now().UTC()
	}
	if refreshed != nil {
		encrypted, err := c.encryptor.EncryptJSON(refreshed)
		if err != nil {
			return fmt.Errorf("encrypting token: %w", err)
		}
		updates["encrypted_token"] = encrypted
	}
	return c.db.WithContext(ctx).Model(cred).Updates(updates).Error
}
