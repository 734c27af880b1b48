package handlers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/roombook/internal/api/dto"
	"github.com/hugh/roombook/internal/api/handlers"
	"github.com/hugh/roombook/internal/api/middleware"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeThrottle struct{ allow bool }

func (f fakeThrottle) Allow(context.Context, string) (bool, error) { return f.allow, nil }

func setupAuthTestRouter(t *testing.T, opts ...auth.Option) (*chi.Mux, *testutil.TestSetup, *auth.Service) {
	tc := testutil.NewTestContext(t)

	authService := auth.NewService(tc.DB, tc.JWTService, opts...)
	handler := handlers.NewAuthHandler(authService, false, time.Hour)

	r := chi.NewRouter()
	r.Post("/api/v1/auth/login", handler.Login)
	r.Post("/api/v1/auth/logout", handler.Logout)
	r.Post("/api/v1/auth/activate", handler.Activate)
	r.Post("/api/v1/auth/password-reset", handler.RequestPasswordReset)
	r.Post("/api/v1/auth/password-reset/confirm", handler.ResetPassword)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(tc.JWTService))
		r.Get("/api/v1/me", handler.Me)
		r.Post("/api/v1/me/password", handler.ChangePassword)
	})

	return r, tc, authService
}

func TestAuthHandler_Login(t *testing.T) {
	router, tc, _ := setupAuthTestRouter(t)

	t.Run("successful login", func(t *testing.T) {
		body := map[string]string{
			"email":    tc.User.Email,
			"password": testutil.TestPassword,
		}

		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", body))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.AuthResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, tc.User.Email, resp.User.Email)
		assert.Equal(t, "user", resp.User.Role)
		assert.NotNil(t, resp.User.LastLoginAt)

		tokenCookie := findCookie(rr, middleware.TokenCookie)
		require.NotNil(t, tokenCookie)
		assert.Equal(t, resp.Token, tokenCookie.Value)
		assert.True(t, tokenCookie.HttpOnly)

		csrfCookie := findCookie(rr, middleware.CSRFCookie)
		require.NotNil(t, csrfCookie)
		assert.NotEmpty(t, csrfCookie.Value)
		assert.False(t, csrfCookie.HttpOnly)
	})

	t.Run("email is case insensitive", func(t *testing.T) {
		body := map[string]string{
			"email":    "  " + tc.User.Email + "  ",
			"password": testutil.TestPassword,
		}
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", body))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("wrong password", func(t *testing.T) {
		body := map[string]string{
			"email":    tc.User.Email,
			"password": "wrongpassword",
		}
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", body))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("non-existent user", func(t *testing.T) {
		body := map[string]string{
			"email":    "nonexistent@example.com",
			"password": "anypassword",
		}
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", body))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("inactive user", func(t *testing.T) {
		inactive := testutil.CreateTestUser(t, tc.DB, models.RoleUser)
		require.NoError(t, tc.DB.Model(inactive).Update("is_active", false).Error)

		body := map[string]string{
			"email":    inactive.Email,
			"password": testutil.TestPassword,
		}
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", body))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", map[string]string{}))
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var resp dto.ErrorResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Contains(t, resp.Details, "email")
		assert.Contains(t, resp.Details, "password")
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	router, _, _ := setupAuthTestRouter(t)

	rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	for _, name := range []string{middleware.TokenCookie, middleware.CSRFCookie} {
		c := findCookie(rr, name)
		require.NotNil(t, c, name)
		assert.Empty(t, c.Value)
		assert.Equal(t, -1, c.MaxAge)
	}
}

func TestAuthHandler_Activate(t *testing.T) {
	router, tc, authService := setupAuthTestRouter(t)
	ctx := testutil.TestContext(t)

	user, token, err := authService.CreateUser(ctx, testutil.PrincipalFor(tc.Admin), auth.CreateUserInput{
		Email: "new.hire@example.com",
		Name:  "New Hire",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	t.Run("login before activation", func(t *testing.T) {
		body := map[string]string{"email": user.Email, "password": testutil.TestPassword}
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", body))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("weak password", func(t *testing.T) {
		body := map[string]string{"token": token, "password": "short"}
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/activate", body))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("activates and signs in", func(t *testing.T) {
		body := map[string]string{"token": token, "password": testutil.TestPassword}
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/activate", body))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.AuthResponse
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.NotEmpty(t, resp.Token)
		assert.True(t, resp.User.Activated)
		assert.NotNil(t, findCookie(rr, middleware.TokenCookie))
	})

	t.Run("token is single use", func(t *testing.T) {
		body := map[string]string{"token": token, "password": testutil.TestPassword}
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/activate", body))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAuthHandler_PasswordReset(t *testing.T) {
	t.Run("unknown email is accepted", func(t *testing.T) {
		router, _, _ := setupAuthTestRouter(t)
		body := map[string]string{"email": "nobody@example.com"}
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/password-reset", body))
		assert.Equal(t, http.StatusAccepted, rr.Code)
	})

	t.Run("throttled request is accepted", func(t *testing.T) {
		router, tc, _ := setupAuthTestRouter(t, auth.WithThrottle(fakeThrottle{allow: false}))
		body := map[string]string{"email": tc.User.Email}
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/password-reset", body))
		assert.Equal(t, http.StatusAccepted, rr.Code)
	})

	t.Run("invalid email", func(t *testing.T) {
		router, _, _ := setupAuthTestRouter(t)
		body := map[string]string{"email": "not-an-email"}
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/password-reset", body))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		router, _, _ := setupAuthTestRouter(t)
		body := map[string]string{"token": "bogus", "password": testutil.TestPassword}
		rr := serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/password-reset/confirm", body))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAuthHandler_Me(t *testing.T) {
	router, tc, _ := setupAuthTestRouter(t)

	t.Run("requires authentication", func(t *testing.T) {
		rr := serve(router, testutil.UnauthenticatedRequest(t, "GET", "/api/v1/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("returns the caller", func(t *testing.T) {
		rr := serve(router, testutil.AuthenticatedRequest(t, "GET", "/api/v1/me", nil, tc.AdminToken))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var resp dto.UserDTO
		testutil.ParseJSONResponse(t, rr, &resp)
		assert.Equal(t, tc.Admin.ID.String(), resp.ID)
		assert.Equal(t, "admin", resp.Role)
	})
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	router, tc, _ := setupAuthTestRouter(t)
	const next = "An0ther-Secret!"

	t.Run("wrong current password", func(t *testing.T) {
		body := map[string]string{"current_password": "nope-nope-1A!", "new_password": next}
		rr := serve(router, testutil.AuthenticatedRequest(t, "POST", "/api/v1/me/password", body, tc.Token))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("changes password", func(t *testing.T) {
		body := map[string]string{"current_password": testutil.TestPassword, "new_password": next}
		rr := serve(router, testutil.AuthenticatedRequest(t, "POST", "/api/v1/me/password", body, tc.Token))
		testutil.AssertStatus(t, rr, http.StatusOK)

		login := map[string]string{"email": tc.User.Email, "password": next}
		rr = serve(router, testutil.UnauthenticatedRequest(t, "POST", "/api/v1/auth/login", login))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
