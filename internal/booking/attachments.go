package booking

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/api/validation"
	"github.com/hugh/roombook/internal/audit"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/internal/storage"
)

var (
	ErrNoAttachment     = errors.New("booking has no attachment")
	ErrStoreUnavailable = errors.New("attachment storage is not configured")
)

type AttachmentInput struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SetAttachment uploads the file and then points the booking at it. The
// previous object, if any, is removed after the row is updated.
func (s *Service) SetAttachment(ctx context.Context, actor auth.Principal, id uuid.UUID, in AttachmentInput) (*models.Booking, error) {
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(b.OrganizerID) {
		return nil, ErrForbidden
	}
	if b.Status == models.BookingStatusCancelled {
		return nil, ErrCancelled
	}

	verr := &ValidationError{}
	name := validation.SafeFilename(in.Name)
	if name == "" {
		verr.add("file", "file name is required")
	}
	if in.Size <= 0 || in.Size > s.maxUpload {
		verr.add("file", fmt.Sprintf("file must be between 1 byte and %d bytes", s.maxUpload))
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if !validation.IsValidContentType(contentType) {
		verr.add("content_type", "invalid content type")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("bookings/%s/%s-%s", b.ID, uuid.NewString(), name)
	if err := s.store.Put(ctx, key, io.LimitReader(in.Body, in.Size), in.Size, contentType); err != nil {
		return nil, storageError("uploading attachment", err)
	}

	previous := b.AttachmentKey
	res := s.db.WithContext(ctx).Model(b).Updates(map[string]any{
		"attachment_key":          key,
		"attachment_name":         name,
		"attachment_content_type": contentType,
		"attachment_size":         in.Size,
	})
	if res.Error != nil {
		if derr := s.store.Delete(ctx, key); derr != nil {
			s.logger.Warn("failed to remove orphaned attachment", "key", key, "error", derr)
		}
		return nil, storageError("saving attachment", res.Error)
	}
	b.AttachmentKey = key
	b.AttachmentName = name
	b.AttachmentContentType = contentType
	b.AttachmentSize = in.Size

	if previous != "" {
		if err := s.store.Delete(ctx, previous); err != nil {
			s.logger.Warn("failed to remove replaced attachment", "key", previous, "error", err)
		}
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionBookingAttachment,
		ResourceType: audit.ResourceBooking,
		ResourceID:   b.ID.String(),
		Details:      map[string]any{"name": name, "size": in.Size},
	})
	return b, nil
}

// OpenAttachment returns the stored file. The caller closes the reader.
func (s *Service) OpenAttachment(ctx context.Context, id uuid.UUID) (io.ReadCloser, *models.Booking, error) {
	if s.store == nil {
		return nil, nil, ErrStoreUnavailable
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if b.AttachmentKey == "" {
		return nil, nil, ErrNoAttachment
	}

	rc, err := s.store.Get(ctx, b.AttachmentKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrNoAttachment
		}
		return nil, nil, storageError("reading attachment", err)
	}
	return rc, b, nil
}
