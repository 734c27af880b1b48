//go:build ignore

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/database"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/pkg/config"
	"github.com/hugh/roombook/pkg/util"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

var sampleRooms = []booking.RoomInput{
	{Name: "Atlas", Location: "Floor 1", Capacity: 12, Equipment: []string{"projector", "whiteboard", "video conferencing"}},
	{Name: "Borealis", Location: "Floor 1", Capacity: 6, Equipment: []string{"tv", "whiteboard"}},
	{Name: "Cedar", Location: "Floor 2", Capacity: 4, Equipment: []string{"whiteboard"}},
	{Name: "Delta", Location: "Floor 2", Capacity: 20, Equipment: []string{"projector", "microphone"}},
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Server.Env)

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	name := os.Getenv("ADMIN_NAME")

	if email == "" {
		email = "admin@example.com"
	}
	if password == "" {
		password = "Change-me-0nce!"
	}
	if name == "" {
		name = "Admin"
	}

	ctx := context.Background()

	var admin models.User
	err = db.WithContext(ctx).Where("email = ?", email).First(&admin).Error
	switch {
	case err == nil:
		fmt.Printf("Admin user already exists: %s\n", email)
	case errors.Is(err, gorm.ErrRecordNotFound):
		hash, err := auth.HashPassword(password)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}
		admin = models.User{
			Email:              email,
			PasswordHash:       hash,
			Name:               name,
			Role:               models.RoleAdmin,
			IsActive:           true,
			MustChangePassword: true,
		}
		if err := db.WithContext(ctx).Create(&admin).Error; err != nil {
			log.Fatalf("failed to create admin user: %v", err)
		}
		fmt.Printf("Admin user created: %s (password change required on first login)\n", email)
	default:
		log.Fatalf("failed to look up admin user: %v", err)
	}

	svc := booking.NewService(db, logger)
	actor := auth.Principal{UserID: admin.ID, Role: models.RoleAdmin}
	for _, in := range sampleRooms {
		room, err := svc.CreateRoom(ctx, actor, in)
		if err != nil {
			var verr *booking.ValidationError
			if errors.As(err, &verr) {
				fmt.Printf("Skipping room %s: %v\n", in.Name, verr)
				continue
			}
			log.Fatalf("failed to create room %s: %v", in.Name, err)
		}
		fmt.Printf("Room created: %s (%s)\n", room.Name, room.ID)
	}
}
