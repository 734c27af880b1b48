package handlers

import (
	"net/http"
	"strconv"

	"github.com/hugh/roombook/internal/api/dto"
	"github.com/hugh/roombook/internal/api/middleware"
	"github.com/hugh/roombook/internal/notifications"
)

type NotificationHandler struct {
	service *notifications.Service
}

func NewNotificationHandler(service *notifications.Service) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type notificationPage struct {
	dto.PaginatedResponse
	Unread int64 `json:"unread"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	p := pagination(r)
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	page, err := h.service.List(r.Context(), middleware.GetPrincipal(r.Context()), notifications.Filter{
		UnreadOnly: unreadOnly,
		Offset:     p.Offset(),
		Limit:      p.PerPage,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationPage{
		PaginatedResponse: dto.Paginate(page.Items, page.Total, p),
		Unread:            page.Unread,
	})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.MarkRead(r.Context(), middleware.GetPrincipal(r.Context()), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.MarkAllRead(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
