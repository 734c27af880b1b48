package handlers_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/roombook/internal/api/dto"
	"github.com/hugh/roombook/internal/api/handlers"
	"github.com/hugh/roombook/internal/api/middleware"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookingFixture struct {
	router *chi.Mux
	tc     *testutil.TestSetup
	svc    services
	room   *models.Room
}

func setupBookingTestRouter(t *testing.T) *bookingFixture {
	tc := testutil.NewTestContext(t)
	svc := newServices(t, tc)
	handler := handlers.NewBookingHandler(svc.bookings, svc.auth, 1<<20)

	r := chi.NewRouter()
	r.Use(middleware.Auth(tc.JWTService))
	r.Route("/api/v1/bookings", func(r chi.Router) {
		r.Get("/", handler.List)
		r.Post("/", handler.Create)
		r.Post("/check", handler.Check)
		r.Get("/{id}", handler.Get)
		r.Put("/{id}", handler.Update)
		r.Post("/{id}/cancel", handler.Cancel)
		r.Post("/{id}/confirm", handler.Confirm)
		r.Get("/{id}/occurrences", handler.Occurrences)
		r.Get("/{id}/ics", handler.ICS)
		r.Post("/{id}/attachment", handler.UploadAttachment)
		r.Get("/{id}/attachment", handler.DownloadAttachment)
	})

	return &bookingFixture{
		router: r,
		tc:     tc,
		svc:    svc,
		room:   testutil.CreateTestRoom(t, tc.DB, "Lighthouse"),
	}
}

type bookingResult struct {
	Booking    models.Booking `json:"booking"`
	Overridden bool           `json:"overridden"`
	Conflicts  []any          `json:"conflicts"`
}

func (f *bookingFixture) create(t *testing.T, token string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	if _, ok := body["room_id"]; !ok {
		body["room_id"] = f.room.ID.String()
	}
	return serve(f.router, testutil.AuthenticatedRequest(t, "POST", "/api/v1/bookings", body, token))
}

func TestBookingHandler_Create(t *testing.T) {
	f := setupBookingTestRouter(t)
	start := nextHour(0)

	var first bookingResult
	t.Run("creates a confirmed booking", func(t *testing.T) {
		rr := f.create(t, f.tc.Token, map[string]any{
			"title":        "Planning",
			"start_time":   start,
			"end_time":     start.Add(time.Hour),
			"participants": []string{"Guest@Example.com"},
		})
		testutil.AssertStatus(t, rr, http.StatusCreated)
		testutil.ParseJSONResponse(t, rr, &first)

		assert.Equal(t, "Planning", first.Booking.Title)
		assert.Equal(t, models.BookingStatusConfirmed, first.Booking.Status)
		assert.Equal(t, f.tc.User.ID, first.Booking.OrganizerID)
		assert.Equal(t, models.StringList{"guest@example.com"}, first.Booking.Participants)
	})

	t.Run("overlap is rejected with every conflict", func(t *testing.T) {
		rr := f.create(t, f.tc.Token, map[string]any{
			"title":      "Clash",
			"start_time": start.Add(30 * time.Minute),
			"end_time":   start.Add(90 * time.Minute),
		})
		testutil.AssertStatus(t, rr, http.StatusConflict)

		var resp dto.ConflictResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		require.Len(t, resp.Conflicts, 1)
		assert.Equal(t, first.Booking.ID, resp.Conflicts[0].BookingID)
	})

	t.Run("touching intervals do not conflict", func(t *testing.T) {
		rr := f.create(t, f.tc.Token, map[string]any{
			"title":      "Follow-up",
			"start_time": start.Add(time.Hour),
			"end_time":   start.Add(2 * time.Hour),
		})
		assert.Equal(t, http.StatusCreated, rr.Code)
	})

	t.Run("admin override commits and reports conflicts", func(t *testing.T) {
		rr := f.create(t, f.tc.AdminToken, map[string]any{
			"title":      "All hands",
			"start_time": start,
			"end_time":   start.Add(2 * time.Hour),
			"override":   true,
		})
		testutil.AssertStatus(t, rr, http.StatusCreated)

		var res bookingResult
		testutil.ParseJSONResponse(t, rr, &res)
		assert.True(t, res.Overridden)
		assert.Len(t, res.Conflicts, 2)
	})

	t.Run("override is ignored for regular users", func(t *testing.T) {
		rr := f.create(t, f.tc.Token, map[string]any{
			"title":      "Sneaky",
			"start_time": start,
			"end_time":   start.Add(time.Hour),
			"override":   true,
		})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("viewer is read-only", func(t *testing.T) {
		rr := f.create(t, f.tc.ViewerTok, map[string]any{
			"title":      "Nope",
			"start_time": start.Add(48 * time.Hour),
			"end_time":   start.Add(49 * time.Hour),
		})
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("end before start", func(t *testing.T) {
		rr := f.create(t, f.tc.Token, map[string]any{
			"title":      "Backwards",
			"start_time": start.Add(72 * time.Hour),
			"end_time":   start.Add(71 * time.Hour),
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("bad room id", func(t *testing.T) {
		rr := f.create(t, f.tc.Token, map[string]any{
			"title":      "Lost",
			"room_id":    "nowhere",
			"start_time": start.Add(72 * time.Hour),
			"end_time":   start.Add(73 * time.Hour),
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.Details, "room_id")
	})
}

func TestBookingHandler_RecurringSeries(t *testing.T) {
	f := setupBookingTestRouter(t)
	start := nextHour(0)

	rr := f.create(t, f.tc.Token, map[string]any{
		"title":      "Weekly sync",
		"start_time": start,
		"end_time":   start.Add(30 * time.Minute),
		"repeat":     map[string]any{"type": "weekly", "count": 3},
	})
	testutil.AssertStatus(t, rr, http.StatusCreated)
	var series bookingResult
	testutil.ParseJSONResponse(t, rr, &series)
	id := series.Booking.ID.String()

	t.Run("occurrences", func(t *testing.T) {
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "GET", "/api/v1/bookings/"+id+"/occurrences", nil, f.tc.ViewerTok))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.OccurrencesResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		require.Len(t, resp.Occurrences, 3)
		assert.True(t, resp.Occurrences[2].Start.Equal(start.AddDate(0, 0, 14)))
	})

	t.Run("occurrences in a window", func(t *testing.T) {
		from := url.QueryEscape(start.AddDate(0, 0, 6).Format(time.RFC3339))
		to := url.QueryEscape(start.AddDate(0, 0, 8).Format(time.RFC3339))
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "GET", "/api/v1/bookings/"+id+"/occurrences?from="+from+"&to="+to, nil, f.tc.Token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.OccurrencesResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Len(t, resp.Occurrences, 1)
	})

	t.Run("check finds a clash with a later occurrence", func(t *testing.T) {
		body := map[string]any{
			"room_id":    f.room.ID.String(),
			"start_time": start.AddDate(0, 0, 14).Add(15 * time.Minute),
			"end_time":   start.AddDate(0, 0, 14).Add(45 * time.Minute),
		}
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "POST", "/api/v1/bookings/check", body, f.tc.Token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.CheckResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.False(t, resp.Available)
		require.Len(t, resp.Conflicts, 1)
		assert.Equal(t, series.Booking.ID, resp.Conflicts[0].BookingID)
	})

	t.Run("check past the series is free", func(t *testing.T) {
		body := map[string]any{
			"room_id":    f.room.ID.String(),
			"start_time": start.AddDate(0, 0, 21),
			"end_time":   start.AddDate(0, 0, 21).Add(30 * time.Minute),
		}
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "POST", "/api/v1/bookings/check", body, f.tc.Token))
		var resp dto.CheckResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.True(t, resp.Available)
		assert.Empty(t, resp.Conflicts)
	})

	t.Run("checking an edit excludes the booking itself", func(t *testing.T) {
		body := map[string]any{
			"room_id":            f.room.ID.String(),
			"start_time":         start,
			"end_time":           start.Add(time.Hour),
			"exclude_booking_id": id,
		}
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "POST", "/api/v1/bookings/check", body, f.tc.Token))
		var resp dto.CheckResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.True(t, resp.Available)
	})

	t.Run("ics carries the rule", func(t *testing.T) {
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "GET", "/api/v1/bookings/"+id+"/ics", nil, f.tc.Token))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, rr.Body.String(), "RRULE:FREQ=WEEKLY")
		assert.Contains(t, rr.Body.String(), "COUNT=3")
	})
}

func TestBookingHandler_UpdateCancelConfirm(t *testing.T) {
	f := setupBookingTestRouter(t)
	start := nextHour(0)

	rr := f.create(t, f.tc.Token, map[string]any{
		"title":      "Draft",
		"start_time": start,
		"end_time":   start.Add(time.Hour),
		"status":     "pending",
	})
	testutil.AssertStatus(t, rr, http.StatusCreated)
	var res bookingResult
	testutil.ParseJSONResponse(t, rr, &res)
	path := "/api/v1/bookings/" + res.Booking.ID.String()

	t.Run("pending does not block", func(t *testing.T) {
		body := map[string]any{
			"room_id":    f.room.ID.String(),
			"start_time": start,
			"end_time":   start.Add(time.Hour),
		}
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "POST", "/api/v1/bookings/check", body, f.tc.AdminToken))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.CheckResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.True(t, resp.Available)
	})

	t.Run("someone else cannot edit", func(t *testing.T) {
		other := testutil.CreateTestUser(t, f.tc.DB, models.RoleUser)
		token := testutil.GenerateTestToken(t, f.tc.JWTService, other)
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "PUT", path, map[string]any{"title": "Mine now"}, token))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("partial update", func(t *testing.T) {
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "PUT", path, map[string]any{"title": "Final"}, f.tc.Token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var updated bookingResult
		testutil.ParseJSONResponse(t, rr, &updated)
		assert.Equal(t, "Final", updated.Booking.Title)
		assert.True(t, updated.Booking.StartTime.Equal(start))
	})

	t.Run("confirm", func(t *testing.T) {
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "POST", path+"/confirm", nil, f.tc.Token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var confirmed bookingResult
		testutil.ParseJSONResponse(t, rr, &confirmed)
		assert.Equal(t, models.BookingStatusConfirmed, confirmed.Booking.Status)

		rr = serve(f.router, testutil.AuthenticatedRequest(t, "POST", path+"/confirm", nil, f.tc.Token))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("cancel", func(t *testing.T) {
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "POST", path+"/cancel", nil, f.tc.Token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var cancelled models.Booking
		testutil.ParseJSONResponse(t, rr, &cancelled)
		assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)

		rr = serve(f.router, testutil.AuthenticatedRequest(t, "PUT", path, map[string]any{"title": "Revived"}, f.tc.Token))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("unknown booking", func(t *testing.T) {
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "GET", "/api/v1/bookings/"+f.room.ID.String(), nil, f.tc.Token))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestBookingHandler_List(t *testing.T) {
	f := setupBookingTestRouter(t)
	other := testutil.CreateTestRoom(t, f.tc.DB, "Studio")
	start := nextHour(0)

	testutil.CreateTestBooking(t, f.tc.DB, f.room, f.tc.User, start, start.Add(time.Hour))
	testutil.CreateTestBooking(t, f.tc.DB, other, f.tc.Admin, start, start.Add(time.Hour))
	testutil.CreateTestBooking(t, f.tc.DB, f.room, f.tc.Admin, start.Add(48*time.Hour), start.Add(49*time.Hour))

	list := func(t *testing.T, query, token string) dto.PaginatedResponse {
		t.Helper()
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "GET", "/api/v1/bookings"+query, nil, token))
		testutil.AssertStatus(t, rr, http.StatusOK)
		var resp dto.PaginatedResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		return resp
	}

	assert.Equal(t, int64(3), list(t, "", f.tc.ViewerTok).Total)
	assert.Equal(t, int64(2), list(t, "?room_id="+f.room.ID.String(), f.tc.Token).Total)
	assert.Equal(t, int64(1), list(t, "?mine=true", f.tc.Token).Total)

	to := url.QueryEscape(start.Add(24 * time.Hour).Format(time.RFC3339))
	assert.Equal(t, int64(2), list(t, "?to="+to, f.tc.Token).Total)

	t.Run("unknown status", func(t *testing.T) {
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "GET", "/api/v1/bookings?status=maybe", nil, f.tc.Token))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func multipartUpload(t *testing.T, path, token, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestBookingHandler_Attachment(t *testing.T) {
	f := setupBookingTestRouter(t)
	start := nextHour(0)
	b := testutil.CreateTestBooking(t, f.tc.DB, f.room, f.tc.User, start, start.Add(time.Hour))
	path := "/api/v1/bookings/" + b.ID.String() + "/attachment"

	t.Run("nothing attached yet", func(t *testing.T) {
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "GET", path, nil, f.tc.Token))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("upload and download", func(t *testing.T) {
		content := []byte("agenda: ship it")
		rr := serve(f.router, multipartUpload(t, path, f.tc.Token, "agenda.txt", "text/plain", content))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var updated models.Booking
		testutil.ParseJSONResponse(t, rr, &updated)
		assert.Equal(t, "agenda.txt", updated.AttachmentName)
		assert.Equal(t, int64(len(content)), updated.AttachmentSize)
		assert.Equal(t, 1, f.svc.store.Len())

		rr = serve(f.router, testutil.AuthenticatedRequest(t, "GET", path, nil, f.tc.ViewerTok))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Header().Get("Content-Disposition"), "agenda.txt")
		assert.Equal(t, content, rr.Body.Bytes())
	})

	t.Run("replacing removes the old object", func(t *testing.T) {
		rr := serve(f.router, multipartUpload(t, path, f.tc.Token, "agenda-v2.txt", "text/plain", []byte("v2")))
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Equal(t, 1, f.svc.store.Len())
	})

	t.Run("only the organizer uploads", func(t *testing.T) {
		rr := serve(f.router, multipartUpload(t, path, f.tc.ViewerTok, "x.txt", "text/plain", []byte("x")))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("too large", func(t *testing.T) {
		rr := serve(f.router, multipartUpload(t, path, f.tc.Token, "big.bin", "application/octet-stream", make([]byte, (1<<20)+1)))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing file part", func(t *testing.T) {
		rr := serve(f.router, testutil.AuthenticatedRequest(t, "POST", path, map[string]string{}, f.tc.Token))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
