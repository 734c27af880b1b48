package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/api/validation"
	"github.com/hugh/roombook/internal/audit"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/pkg/crypto"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user is inactive")
	ErrNotActivated       = errors.New("account has not been activated")
	ErrInvalidResetToken  = errors.New("invalid or expired token")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrForbidden          = errors.New("forbidden")
	ErrSelfLockout        = errors.New("admins cannot demote or deactivate themselves")
	ErrInvalidRole        = errors.New("invalid role")
	ErrThrottled          = errors.New("too many requests")
)

// Notifier hands one-time tokens to the mail pipeline.
type Notifier interface {
	ActivationIssued(ctx context.Context, user *models.User, token string) error
	PasswordResetIssued(ctx context.Context, user *models.User, token string) error
}

// Throttle limits repeated requests per key (password reset per email).
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Service struct {
	db       *gorm.DB
	jwt      *JWTService
	logger   *slog.Logger
	audit    *audit.Recorder
	notifier Notifier
	throttle Throttle
	tokenTTL time.Duration
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option            { return func(s *Service) { s.logger = l } }
func WithAuditRecorder(r *audit.Recorder) Option { return func(s *Service) { s.audit = r } }
func WithNotifier(n Notifier) Option             { return func(s *Service) { s.notifier = n } }
func WithThrottle(t Throttle) Option             { return func(s *Service) { s.throttle = t } }
func WithTokenTTL(d time.Duration) Option        { return func(s *Service) { s.tokenTTL = d } }
func WithClock(now func() time.Time) Option      { return func(s *Service) { s.now = now } }

func NewService(db *gorm.DB, jwt *JWTService, opts ...Option) *Service {
	s := &Service{
		db:       db,
		jwt:      jwt,
		logger:   slog.Default(),
		tokenTTL: 72 * time.Hour,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkPasswordPolicy(password string) error {
	if ok, msg := validation.IsValidPassword(password); !ok {
		return fmt.Errorf("%w: %s", ErrWeakPassword, msg)
	}
	return nil
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email = ?", normalizeEmail(input.Email)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == "" && user.ActivationTokenHash != "" {
		return nil, ErrNotActivated
	}
	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		s.logger.Warn("failed to record login time", "user_id", user.ID, "error", err)
	}
	user.LastLoginAt = &now

	token, err := s.jwt.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      user.ID,
		Action:       audit.ActionUserLogin,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID.String(),
	})

	return &AuthResponse{Token: token, User: &user}, nil
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

type CreateUserInput struct {
	Email string
	Name  string
	Role  models.Role
	// Password is optional. Without it the user receives an activation link
	// and picks their own password on first login.
	Password string
}

// CreateUser returns the plaintext activation token once; only its digest is stored.
func (s *Service) CreateUser(ctx context.Context, actor Principal, input CreateUserInput) (*models.User, string, error) {
	if !actor.IsAdmin() {
		return nil, "", ErrForbidden
	}
	if input.Role == "" {
		input.Role = models.RoleUser
	}
	if !input.Role.Valid() {
		return nil, "", ErrInvalidRole
	}

	user := models.User{
		Email: normalizeEmail(input.Email),
		Name:  strings.TrimSpace(input.Name),
		Role:  input.Role,
	}

	var activationToken string
	if input.Password != "" {
		if err := checkPasswordPolicy(input.Password); err != nil {
			return nil, "", err
		}
		hash, err := HashPassword(input.Password)
		if err != nil {
			return nil, "", err
		}
		user.PasswordHash = hash
		user.IsActive = true
		// an admin-chosen password is temporary
		user.MustChangePassword = true
	} else {
		token, digest, err := crypto.NewToken()
		if err != nil {
			return nil, "", err
		}
		expires := s.now().UTC().Add(s.tokenTTL)
		activationToken = token
		user.ActivationTokenHash = digest
		user.ActivationExpiresAt = &expires
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUserExists
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return nil, "", err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionUserCreate,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID.String(),
		Details:      map[string]any{"email": user.Email, "role": user.Role},
	})

	if activationToken != "" && s.notifier != nil {
		if err := s.notifier.ActivationIssued(ctx, &user, activationToken); err != nil {
			s.logger.Error("failed to queue activation email", "user_id", user.ID, "error", err)
		}
	}

	return &user, activationToken, nil
}

type UpdateUserInput struct {
	Name     *string
	Role     *models.Role
	IsActive *bool
}

func (s *Service) UpdateUser(ctx context.Context, actor Principal, id uuid.UUID, input UpdateUserInput) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if input.Role != nil && !input.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if actor.UserID == id {
		if (input.Role != nil && *input.Role != models.RoleAdmin) || (input.IsActive != nil && !*input.IsActive) {
			return nil, ErrSelfLockout
		}
	}

	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
		changes["name"] = user.Name
	}
	if input.Role != nil {
		user.Role = *input.Role
		changes["role"] = user.Role
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
		changes["is_active"] = user.IsActive
	}
	if len(changes) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(changes).Error; err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionUserUpdate,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID.String(),
		Details:      changes,
	})

	return user, nil
}

// Activate consumes an activation token and sets the user's first password.
func (s *Service) Activate(ctx context.Context, token, password string) (*AuthResponse, error) {
	if err := checkPasswordPolicy(password); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).
		Where("activation_token_hash = ?", crypto.HashToken(token)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidResetToken
		}
		return nil, err
	}
	if user.ActivationExpiresAt == nil || !s.now().Before(*user.ActivationExpiresAt) {
		return nil, ErrInvalidResetToken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&user).Updates(map[string]any{
		"password_hash":         hash,
		"is_active":             true,
		"must_change_password":  false,
		"activation_token_hash": "",
		"activation_expires_at": nil,
	}).Error; err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      user.ID,
		Action:       audit.ActionUserActivate,
		ResourceType: audit.ResourceUser,
		ResourceID:   user.ID.String(),
	})

	return s.Login(ctx, LoginInput{Email: user.Email, Password: password})
}

// RequestPasswordReset never reveals whether the email exists.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, "password_reset:"+email)
		if err != nil {
			s.logger.Warn("reset throttle unavailable", "error", err)
		} else if !ok {
			return ErrThrottled
		}
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ? AND is_active = ?", email, true).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	token, digest, err := crypto.NewToken()
	if err != nil {
		return err
	}

	reset := models.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: digest,
		ExpiresAt: s.now().UTC().Add(s.tokenTTL),
	}
	if err := s.db.WithContext(ctx).Create(&reset).Error; err != nil {
		return err
	}

	if s.notifier != nil {
		if err := s.notifier.PasswordResetIssued(ctx, &user, token); err != nil {
			s.logger.Error("failed to queue reset email", "user_id", user.ID, "error", err)
		}
	}
	return nil
}

// ResetPassword consumes a reset token. Every other outstanding token for the
// user is invalidated in the same transaction.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := checkPasswordPolicy(password); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	var userID uuid.UUID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reset models.PasswordResetToken
		if err := tx.Where("token_hash = ?", crypto.HashToken(token)).First(&reset).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidResetToken
			}
			return err
		}
		if !reset.Usable(now) {
			return ErrInvalidResetToken
		}
		userID = reset.UserID

		// conditional update so two concurrent resets cannot both succeed
		res := tx.Model(&models.PasswordResetToken{}).
			Where("user_id = ? AND used_at IS NULL", reset.UserID).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidResetToken
		}

		return tx.Model(&models.User{}).Where("id = ?", reset.UserID).Updates(map[string]any{
			"password_hash":        hash,
			"must_change_password": false,
		}).Error
	})
	if err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      userID,
		Action:       audit.ActionPasswordReset,
		ResourceType: audit.ResourceUser,
		ResourceID:   userID.String(),
	})
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, p Principal, current, next string) error {
	user, err := s.GetUserByID(ctx, p.UserID)
	if err != nil {
		return err
	}
	if !CheckPassword(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := checkPasswordPolicy(next); err != nil {
		return err
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"password_hash":        hash,
		"must_change_password": false,
	}).Error; err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      p.UserID,
		Action:       audit.ActionPasswordChange,
		ResourceType: audit.ResourceUser,
		ResourceID:   p.UserID.String(),
	})
	return nil
}
