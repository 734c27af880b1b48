package booking

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/api/validation"
	"github.com/hugh/roombook/internal/audit"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/database/models"
	"gorm.io/gorm"
)

type RoomInput struct {
	Name        string
	Location    string
	Description string
	Capacity    int
	Equipment   []string
	IsActive    *bool
}

func (s *Service) ListRooms(ctx context.Context, includeInactive bool) ([]models.Room, error) {
	query := s.db.WithContext(ctx).Order("name")
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	var rooms []models.Room
	if err := query.Find(&rooms).Error; err != nil {
		return nil, storageError("listing rooms", err)
	}
	return rooms, nil
}

func (s *Service) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	if err := s.db.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, storageError("loading room", err)
	}
	return &room, nil
}

func (s *Service) roomNameTaken(ctx context.Context, name string, exclude uuid.UUID) (bool, error) {
	query := s.db.WithContext(ctx).Model(&models.Room{}).Where("LOWER(name) = ?", strings.ToLower(name))
	if exclude != uuid.Nil {
		query = query.Where("id <> ?", exclude)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, storageError("checking room name", err)
	}
	return count > 0, nil
}

func validateRoomInput(in RoomInput) error {
	fields := validation.ValidateRoom(in.Name, in.Capacity, in.Equipment)
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *Service) CreateRoom(ctx context.Context, actor auth.Principal, in RoomInput) (*models.Room, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := validateRoomInput(in); err != nil {
		return nil, err
	}

	name := validation.CleanText(in.Name, 100)
	taken, err := s.roomNameTaken(ctx, name, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, &ValidationError{Fields: map[string]string{"name": "a room with this name already exists"}}
	}

	room := &models.Room{
		Name:        name,
		Location:    validation.CleanText(in.Location, 200),
		Description: validation.CleanText(in.Description, validation.MaxDescriptionLength),
		Capacity:    in.Capacity,
		Equipment:   models.StringList(in.Equipment),
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	if err := s.db.WithContext(ctx).Create(room).Error; err != nil {
		return nil, storageError("creating room", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionRoomCreate,
		ResourceType: audit.ResourceRoom,
		ResourceID:   room.ID.String(),
		Details:      map[string]any{"name": room.Name, "capacity": room.Capacity},
	})
	return room, nil
}

func (s *Service) UpdateRoom(ctx context.Context, actor auth.Principal, id uuid.UUID, in RoomInput) (*models.Room, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if err := validateRoomInput(in); err != nil {
		return nil, err
	}

	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}

	name := validation.CleanText(in.Name, 100)
	taken, err := s.roomNameTaken(ctx, name, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, &ValidationError{Fields: map[string]string{"name": "a room with this name already exists"}}
	}

	room.Name = name
	room.Location = validation.CleanText(in.Location, 200)
	room.Description = validation.CleanText(in.Description, validation.MaxDescriptionLength)
	room.Capacity = in.Capacity
	room.Equipment = models.StringList(in.Equipment)
	if in.IsActive != nil {
		room.IsActive = *in.IsActive
	}

	if err := s.db.WithContext(ctx).Save(room).Error; err != nil {
		return nil, storageError("updating room", err)
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionRoomUpdate,
		ResourceType: audit.ResourceRoom,
		ResourceID:   room.ID.String(),
		Details:      map[string]any{"name": room.Name, "capacity": room.Capacity, "is_active": room.IsActive},
	})
	return room, nil
}

// DeactivateRoom hides a room from new bookings. Existing bookings are kept.
func (s *Service) DeactivateRoom(ctx context.Context, actor auth.Principal, id uuid.UUID) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	res := s.db.WithContext(ctx).Model(&models.Room{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return storageError("deactivating room", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRoomNotFound
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:      actor.UserID,
		Action:       audit.ActionRoomDeactivate,
		ResourceType: audit.ResourceRoom,
		ResourceID:   id.String(),
	})
	return nil
}
