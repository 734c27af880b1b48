package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/roombook/internal/api/dto"
	"github.com/hugh/roombook/internal/audit"
)

type AuditHandler struct {
	recorder *audit.Recorder
}

func NewAuditHandler(recorder *audit.Recorder) *AuditHandler {
	return &AuditHandler{recorder: recorder}
}

// List is mounted behind the admin role check.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := pagination(r)
	filter := audit.Filter{
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Action:       q.Get("action"),
		Offset:       p.Offset(),
		Limit:        p.PerPage,
	}
	if raw := q.Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeValidation(w, map[string]string{"user_id": "Invalid user ID"})
			return
		}
		filter.UserID = id
	}

	entries, total, err := h.recorder.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.Paginate(entries, total, p))
}
