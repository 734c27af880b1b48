package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/database"
	"github.com/hugh/roombook/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword satisfies the password policy.
const TestPassword = "Corr3ct-Horse!"

// SetupTestDB creates an in-memory SQLite database for testing. It is limited
// to one connection: each new :memory: connection would be a separate database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// CreateTestUser creates an active user with TestPassword.
func CreateTestUser(t *testing.T, db *gorm.DB, role models.Role) *models.User {
	t.Helper()

	hash, err := auth.HashPassword(TestPassword)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	suffix := uuid.New().String()[:8]
	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:        string(role) + "-" + suffix + "@example.com",
		PasswordHash: hash,
		Name:         "Test " + string(role) + " " + suffix,
		Role:         role,
		IsActive:     true,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTestRoom creates an active room with capacity 10.
func CreateTestRoom(t *testing.T, db *gorm.DB, name string) *models.Room {
	t.Helper()

	room := &models.Room{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name:      name,
		Location:  "Floor 1",
		Capacity:  10,
		Equipment: models.StringList{"whiteboard"},
		IsActive:  true,
	}

	if err := db.Create(room).Error; err != nil {
		t.Fatalf("failed to create test room: %v", err)
	}

	return room
}

// CreateTestBooking inserts a confirmed single booking directly, bypassing
// the conflict check.
func CreateTestBooking(t *testing.T, db *gorm.DB, room *models.Room, organizer *models.User, start, end time.Time) *models.Booking {
	t.Helper()

	b := &models.Booking{
		Base: models.Base{
			ID: uuid.New(),
		},
		Title:       "Test booking",
		RoomID:      room.ID,
		OrganizerID: organizer.ID,
		StartTime:   start.UTC(),
		EndTime:     end.UTC(),
		SeriesEnd:   end.UTC(),
		RepeatType:  models.RepeatNone,
		Status:      models.BookingStatusConfirmed,
	}

	if err := db.Create(b).Error; err != nil {
		t.Fatalf("failed to create test booking: %v", err)
	}

	return b
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

func PrincipalFor(user *models.User) auth.Principal {
	return auth.Principal{UserID: user.ID, Role: user.Role}
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Admin      *models.User
	User       *models.User
	Viewer     *models.User
	AdminToken string
	Token      string
	ViewerTok  string
}

// NewTestContext creates a DB with one user of each role and their tokens.
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	admin := CreateTestUser(t, db, models.RoleAdmin)
	user := CreateTestUser(t, db, models.RoleUser)
	viewer := CreateTestUser(t, db, models.RoleViewer)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Admin:      admin,
		User:       user,
		Viewer:     viewer,
		AdminToken: GenerateTestToken(t, jwtService, admin),
		Token:      GenerateTestToken(t, jwtService, user),
		ViewerTok:  GenerateTestToken(t, jwtService, viewer),
	}
}
