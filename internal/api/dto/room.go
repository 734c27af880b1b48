package dto

import "github.com/hugh/roombook/internal/booking"

type RoomRequest struct {
	Name        string   `json:"name"`
	Location    string   `json:"location,omitempty"`
	Description string   `json:"description,omitempty"`
	Capacity    int      `json:"capacity"`
	Equipment   []string `json:"equipment,omitempty"`
	IsActive    *bool    `json:"is_active,omitempty"`
}

func (r RoomRequest) Input() booking.RoomInput {
	return booking.RoomInput{
		Name:        r.Name,
		Location:    r.Location,
		Description: r.Description,
		Capacity:    r.Capacity,
		Equipment:   r.Equipment,
		IsActive:    r.IsActive,
	}
}
