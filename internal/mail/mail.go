// Package mail renders and delivers notification emails.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/pkg/config"
	"github.com/hugh/roombook/pkg/crypto"
	"gorm.io/gorm"
)

var (
	ErrNotConfigured = errors.New("email delivery is not configured")
	ErrNoRecipients  = errors.New("message has no recipients")
)

type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SendFunc delivers a raw RFC 5322 message. It matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender prefers the admin-edited settings row and falls back to the
// environment configuration.
type SMTPSender struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
	fallback  config.MailConfig
	logger    *slog.Logger
	send      SendFunc
	now       func() time.Time
}

func NewSMTPSender(db *gorm.DB, encryptor *crypto.Encryptor, fallback config.MailConfig, logger *slog.Logger) *SMTPSender {
	return &SMTPSender{
		db:        db,
		encryptor: encryptor,
		fallback:  fallback,
		logger:    logger,
		send:      smtp.SendMail,
		now:       time.Now,
	}
}

// WithSendFunc replaces the transport, for tests.
func (s *SMTPSender) WithSendFunc(fn SendFunc) *SMTPSender {
	s.send = fn
	return s
}

type smtpSettings struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
}

func (s *SMTPSender) settings(ctx context.Context) (*smtpSettings, error) {
	var row models.EmailSettings
	err := s.db.WithContext(ctx).Order("created_at DESC").First(&row).Error
	switch {
	case err == nil && row.Enabled:
		password := ""
		if len(row.EncryptedPassword) > 0 {
			plain, err := s.encryptor.Decrypt(row.EncryptedPassword)
			if err != nil {
				return nil, fmt.Errorf("decrypting smtp password: %w", err)
			}
			password = string(plain)
		}
		return &smtpSettings{
			host:     row.Host,
			port:     row.Port,
			username: row.Username,
			password: password,
			from:     row.FromAddress,
			fromName: row.FromName,
		}, nil
	case err == nil:
		return nil, ErrNotConfigured
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	if s.fallback.Host == "" {
		return nil, ErrNotConfigured
	}
	return &smtpSettings{
		host:     s.fallback.Host,
		port:     s.fallback.Port,
		username: s.fallback.Username,
		password: s.fallback.Password,
		from:     s.fallback.From,
		fromName: s.fallback.FromName,
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	cfg, err := s.settings(ctx)
	if err != nil {
		return err
	}

	var a smtp.Auth
	if cfg.username != "" {
		a = smtp.PlainAuth("", cfg.username, cfg.password, cfg.host)
	}

	raw := buildMessage(cfg.from, cfg.fromName, msg, s.now())
	addr := fmt.Sprintf("%s:%d", cfg.host, cfg.port)
	if err := s.send(addr, a, cfg.from, msg.To, raw); err != nil {
		return fmt.Errorf("sending mail to %d recipient(s): %w", len(msg.To), err)
	}

	s.logger.Info("email sent", "subject", msg.Subject, "recipients", len(msg.To))
	return nil
}

func buildMessage(from, fromName string, msg Message, now time.Time) []byte {
	sender := from
	if fromName != "" {
		sender = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), from)
	}

	var b strings.Builder
	b.WriteString("From: " + sender + "\r\n")
	b.WriteString("To: " + strings.Join(msg.To, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}
