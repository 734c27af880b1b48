package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/roombook/internal/api/handlers"
	"github.com/hugh/roombook/internal/api/middleware"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDashboardHandler_Stats(t *testing.T) {
	tc := testutil.NewTestContext(t)
	svc := newServices(t, tc)

	a := testutil.CreateTestRoom(t, tc.DB, "Alpha")
	testutil.CreateTestRoom(t, tc.DB, "Beta")
	now := time.Now().UTC()
	testutil.CreateTestBooking(t, tc.DB, a, tc.User, now.Add(-10*time.Minute), now.Add(20*time.Minute))
	testutil.CreateTestBooking(t, tc.DB, a, tc.User, now.Add(72*time.Hour), now.Add(73*time.Hour))

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))
	r.Get("/api/v1/dashboard/stats", handlers.NewDashboardHandler(svc.bookings).Stats)

	rr := serve(r, testutil.AuthenticatedRequest(t, "GET", "/api/v1/dashboard/stats", nil, tc.Token))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var stats booking.Stats
	testutil.ParseJSONResponse(t, rr, &stats)
	assert.Equal(t, int64(2), stats.ActiveRooms)
	assert.Equal(t, 1, stats.RoomsFreeNow)
	assert.Equal(t, int64(2), stats.MyUpcoming)
}
