package mail

import (
	"context"
	"errors"
	"strings"

	"github.com/hugh/roombook/internal/audit"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/pkg/crypto"
	"gorm.io/gorm"
)

var ErrForbidden = errors.New("forbidden")

// SettingsService edits the single email_settings row.
type SettingsService struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
	audit     *audit.Recorder
}

func NewSettingsService(db *gorm.DB, encryptor *crypto.Encryptor, recorder *audit.Recorder) *SettingsService {
	return &SettingsService{db: db, encryptor: encryptor, audit: recorder}
}

type SettingsInput struct {
	Host        string
	Port        int
	Username    string
	Password    *string // nil keeps the stored password
	FromAddress string
	FromName    string
	Enabled     bool
}

// Get returns the saved settings, or a zero row when none were saved.
func (s *SettingsService) Get(ctx context.Context, actor auth.Principal) (*models.EmailSettings, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	var row models.EmailSettings
	err := s.db.WithContext(ctx).Order("created_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.EmailSettings{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *SettingsService) Update(ctx context.Context, actor auth.Principal, in SettingsInput) (*models.EmailSettings, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	row, err := s.Get(ctx, actor)
	if err != nil {
		return nil, err
	}

	row.Host = strings.TrimSpace(in.Host)
	row.Port = in.Port
	row.Username = strings.TrimSpace(in.Username)
	row.FromAddress = strings.TrimSpace(in.FromAddress)
	row.FromName = strings.TrimSpace(in.FromName)
	row.Enabled = in.Enabled
	if in.Password != nil {
		row.EncryptedPassword = nil
		if *in.Password != "" {
			enc, err := s.encryptor.Encrypt([]byte(*in.Password))
			if err != nil {
				return nil, err
			}
			row.EncryptedPassword = enc
		}
	}

	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionEmailSettings,
		ResourceType: audit.ResourceSettings,
		ResourceID:   row.ID.String(),
		Details: map[string]any{
			"host":             row.Host,
			"port":             row.Port,
			"enabled":          row.Enabled,
			"password_changed": in.Password != nil,
		},
	})
	return row, nil
}
