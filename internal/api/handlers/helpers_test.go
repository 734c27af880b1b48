package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/storage"
	"github.com/hugh/roombook/internal/testutil"
	"github.com/hugh/roombook/pkg/util"
)

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// services wires the real services over the test database. Attachments go to
// an in-memory store.
type services struct {
	auth     *auth.Service
	bookings *booking.Service
	store    *storage.MemoryStore
}

func newServices(t *testing.T, tc *testutil.TestSetup) services {
	t.Helper()
	store := storage.NewMemoryStore()
	return services{
		auth: auth.NewService(tc.DB, tc.JWTService, auth.WithLogger(util.DiscardLogger())),
		bookings: booking.NewService(tc.DB, util.DiscardLogger(),
			booking.WithObjectStore(store),
			booking.WithMaxUpload(1<<20),
		),
		store: store,
	}
}

// nextHour is a stable slot in the future, truncated to the hour.
func nextHour(offset time.Duration) time.Time {
	return time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour).Add(offset)
}
