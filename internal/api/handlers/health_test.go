package handlers_test

import (
	"net/http"
	"testing"

	"github.com/hugh/roombook/internal/api/handlers"
	"github.com/hugh/roombook/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHealthHandler(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := handlers.NewHealthHandler(db, nil)

	t.Run("database only", func(t *testing.T) {
		rr := serve(http.HandlerFunc(h.Health), testutil.UnauthenticatedRequest(t, "GET", "/health", nil))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp handlers.HealthResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "healthy", resp.Services["database"])
		assert.NotContains(t, resp.Services, "redis")
	})

	t.Run("ready", func(t *testing.T) {
		rr := serve(http.HandlerFunc(h.Ready), testutil.UnauthenticatedRequest(t, "GET", "/ready", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", rr.Body.String())
	})

	t.Run("closed database", func(t *testing.T) {
		sqlDB, _ := db.DB()
		sqlDB.Close()

		rr := serve(http.HandlerFunc(h.Health), testutil.UnauthenticatedRequest(t, "GET", "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}
