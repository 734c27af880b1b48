package models

type Room struct {
	Base
	Name        string     `gorm:"uniqueIndex;not null" json:"name"`
	Location    string     `json:"location"`
	Description string     `json:"description"`
	Capacity    int        `gorm:"not null" json:"capacity"`
	Equipment   StringList `gorm:"type:text" json:"equipment"`
	IsActive    bool       `gorm:"index" json:"is_active"`
}

func (Room) TableName() string {
	return "rooms"
}
