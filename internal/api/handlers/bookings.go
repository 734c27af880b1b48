package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/api/dto"
	"github.com/hugh/roombook/internal/api/middleware"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/calendar"
	"github.com/hugh/roombook/internal/database/models"
)

type BookingHandler struct {
	bookings  *booking.Service
	users     *auth.Service
	maxUpload int64
}

func NewBookingHandler(bookings *booking.Service, users *auth.Service, maxUpload int64) *BookingHandler {
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &BookingHandler{bookings: bookings, users: users, maxUpload: maxUpload}
}

// List supports room_id, status, from, to and mine=true.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := pagination(r)
	filter := booking.ListFilter{
		Status: models.BookingStatus(q.Get("status")),
		Offset: p.Offset(),
		Limit:  p.PerPage,
	}

	if raw := q.Get("room_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeValidation(w, map[string]string{"room_id": "Invalid room ID"})
			return
		}
		filter.RoomID = id
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeValidation(w, map[string]string{"status": "Unknown status"})
		return
	}
	if mine, _ := strconv.ParseBool(q.Get("mine")); mine {
		filter.OrganizerID = middleware.GetUserID(r.Context())
	}

	var err error
	if filter.From, err = queryTime(r, "from"); err != nil {
		writeValidation(w, map[string]string{"from": "Must be an RFC 3339 timestamp"})
		return
	}
	if filter.To, err = queryTime(r, "to"); err != nil {
		writeValidation(w, map[string]string{"to": "Must be an RFC 3339 timestamp"})
		return
	}

	bookings, total, err := h.bookings.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Paginate(bookings, total, p))
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, errs := req.Input(h.bookings.Location())
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	result, err := h.bookings.Create(r.Context(), middleware.GetPrincipal(r.Context()), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	b, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req dto.UpdateBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input, errs := req.Input(h.bookings.Location())
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	result, err := h.bookings.Update(r.Context(), middleware.GetPrincipal(r.Context()), id, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	b, err := h.bookings.Cancel(r.Context(), middleware.GetPrincipal(r.Context()), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Confirm takes an optional body; an empty one means no override.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req dto.ConfirmRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.bookings.Confirm(r.Context(), middleware.GetPrincipal(r.Context()), id, req.Override)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BookingHandler) Occurrences(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	from, err := queryTime(r, "from")
	if err != nil {
		writeValidation(w, map[string]string{"from": "Must be an RFC 3339 timestamp"})
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeValidation(w, map[string]string{"to": "Must be an RFC 3339 timestamp"})
		return
	}

	var window *booking.Interval
	if from != nil || to != nil {
		if from == nil || to == nil {
			writeValidation(w, map[string]string{"from": "from and to must be given together"})
			return
		}
		window = &booking.Interval{Start: *from, End: *to}
	}

	occ, err := h.bookings.Occurrences(r.Context(), id, window)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.OccurrencesResponse{BookingID: id.String(), Occurrences: occ})
}

// Check never writes. Conflicts are reported in a 200 body, not as a 409.
func (h *BookingHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req dto.CheckBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		req.Title = "availability check"
	}
	input, errs := req.Input(h.bookings.Location())
	var exclude uuid.UUID
	if req.ExcludeBookingID != "" {
		id, err := uuid.Parse(req.ExcludeBookingID)
		if err != nil {
			errs["exclude_booking_id"] = "Invalid booking ID"
		}
		exclude = id
	}
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	result, err := h.bookings.Check(r.Context(), middleware.GetPrincipal(r.Context()), input, exclude)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	conflicts := result.Conflicts
	if conflicts == nil {
		conflicts = []booking.Conflict{}
	}
	writeJSON(w, http.StatusOK, dto.CheckResponse{Available: len(conflicts) == 0, Conflicts: conflicts})
}

// ICS exports a single booking, including its recurrence rule.
func (h *BookingHandler) ICS(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	b, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	room, err := h.bookings.GetRoom(r.Context(), b.RoomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var email string
	if u, err := h.users.GetUserByID(r.Context(), b.OrganizerID); err == nil {
		email = u.Email
	}

	feed := []calendar.Feed{{Booking: b, Room: room, OrganizerEmail: email}}
	writeCalendar(w, r, b.Title, "booking-"+b.ID.String()+".ics", feed, h.bookings.Location(), time.Now())
}

// UploadAttachment expects a multipart form with a single "file" part.
func (h *BookingHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Attachment too large")
			return
		}
		writeValidation(w, map[string]string{"file": "Expected a multipart upload"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeValidation(w, map[string]string{"file": "File is required"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b, err := h.bookings.SetAttachment(r.Context(), middleware.GetPrincipal(r.Context()), id, booking.AttachmentInput{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BookingHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	rc, b, err := h.bookings.OpenAttachment(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", b.AttachmentContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+b.AttachmentName+`"`)
	if b.AttachmentSize > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(b.AttachmentSize, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
