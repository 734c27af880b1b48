package handlers

import (
	"net/http"

	"github.com/hugh/roombook/internal/api/dto"
	"github.com/hugh/roombook/internal/api/middleware"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/database/models"
)

type UserHandler struct {
	authService *auth.Service
}

func NewUserHandler(authService *auth.Service) *UserHandler {
	return &UserHandler{authService: authService}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	p := pagination(r)
	users, total, err := h.authService.ListUsers(r.Context(), middleware.GetPrincipal(r.Context()), auth.UserFilter{
		Role:   models.Role(r.URL.Query().Get("role")),
		Search: r.URL.Query().Get("q"),
		Offset: p.Offset(),
		Limit:  p.PerPage,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]dto.UserDTO, 0, len(users))
	for i := range users {
		out = append(out, dto.UserFromModel(&users[i]))
	}
	writeJSON(w, http.StatusOK, dto.Paginate(out, total, p))
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	user, token, err := h.authService.CreateUser(r.Context(), middleware.GetPrincipal(r.Context()), auth.CreateUserInput{
		Email:    req.Email,
		Name:     req.Name,
		Role:     models.Role(req.Role),
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.CreateUserResponse{User: dto.UserFromModel(user), ActivationToken: token})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	user, err := h.authService.GetUserByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.UserFromModel(user))
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	var req dto.UpdateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeValidation(w, errors)
		return
	}

	input := auth.UpdateUserInput{Name: req.Name, IsActive: req.IsActive}
	if req.Role != nil {
		role := models.Role(*req.Role)
		input.Role = &role
	}
	user, err := h.authService.UpdateUser(r.Context(), middleware.GetPrincipal(r.Context()), id, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.UserFromModel(user))
}

// Deactivate keeps the row so bookings and audit entries still resolve.
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r, "id")
	if !ok {
		return
	}
	inactive := false
	if _, err := h.authService.UpdateUser(r.Context(), middleware.GetPrincipal(r.Context()), id, auth.UpdateUserInput{IsActive: &inactive}); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Directory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.authService.Directory(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
