package handlers

import (
	"net/http"

	"github.com/hugh/roombook/internal/api/middleware"
	"github.com/hugh/roombook/internal/booking"
)

type DashboardHandler struct {
	bookings *booking.Service
}

func NewDashboardHandler(bookings *booking.Service) *DashboardHandler {
	return &DashboardHandler{bookings: bookings}
}

func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.bookings.DashboardStats(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
