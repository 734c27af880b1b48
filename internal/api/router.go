package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hugh/roombook/internal/api/handlers"
	"github.com/hugh/roombook/internal/api/middleware"
	"github.com/hugh/roombook/internal/audit"
	"github.com/hugh/roombook/internal/auth"
	"github.com/hugh/roombook/internal/booking"
	"github.com/hugh/roombook/internal/calendar"
	"github.com/hugh/roombook/internal/database/models"
	"github.com/hugh/roombook/internal/mail"
	"github.com/hugh/roombook/internal/notifications"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB            *gorm.DB
	Redis         *redis.Client // optional; rate limits fall back to process memory
	Logger        *slog.Logger
	JWTService    *auth.JWTService
	AuthService   *auth.Service
	Bookings      *booking.Service
	Notifications *notifications.Service
	Audit         *audit.Recorder
	EmailSettings *mail.SettingsService
	Calendar      *calendar.Credentials

	AllowedOrigins []string
	SecureCookies  bool
	SessionTTL     time.Duration
	MaxUpload      int64
	RateLimitReqs  int
	RateLimitSecs  int
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.AuditIP)

	if cfg.RateLimitReqs > 0 {
		window := time.Duration(cfg.RateLimitSecs) * time.Second
		var limiter middleware.Limiter
		if cfg.Redis != nil {
			limiter = middleware.NewRedisLimiter(cfg.Redis, cfg.RateLimitReqs, window)
		} else {
			limiter = middleware.NewMemoryLimiter(cfg.RateLimitReqs, window)
		}
		r.Use(middleware.RateLimit(limiter, cfg.Logger))
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.CSRFHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.SecureCookies, cfg.SessionTTL)
	userHandler := handlers.NewUserHandler(cfg.AuthService)
	roomHandler := handlers.NewRoomHandler(cfg.Bookings, cfg.AuthService)
	bookingHandler := handlers.NewBookingHandler(cfg.Bookings, cfg.AuthService, cfg.MaxUpload)
	dashboardHandler := handlers.NewDashboardHandler(cfg.Bookings)
	notificationHandler := handlers.NewNotificationHandler(cfg.Notifications)
	auditHandler := handlers.NewAuditHandler(cfg.Audit)
	settingsHandler := handlers.NewSettingsHandler(cfg.EmailSettings)
	calendarHandler := handlers.NewCalendarHandler(cfg.Calendar)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/activate", authHandler.Activate)
		r.Post("/auth/password-reset", authHandler.RequestPasswordReset)
		r.Post("/auth/password-reset/confirm", authHandler.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))
			r.Use(middleware.CSRF)
			admin := middleware.RequireRole(models.RoleAdmin)

			r.Get("/me", authHandler.Me)
			r.Post("/me/password", authHandler.ChangePassword)

			r.Route("/users", func(r chi.Router) {
				r.Get("/directory", userHandler.Directory)
				r.Group(func(r chi.Router) {
					r.Use(admin)
					r.Get("/", userHandler.List)
					r.Post("/", userHandler.Create)
					r.Get("/{id}", userHandler.Get)
					r.Put("/{id}", userHandler.Update)
					r.Delete("/{id}", userHandler.Deactivate)
				})
			})

			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", roomHandler.List)
				r.Get("/{id}", roomHandler.Get)
				r.Get("/{id}/availability", roomHandler.RoomAvailability)
				r.Get("/{id}/calendar.ics", roomHandler.Calendar)
				r.Group(func(r chi.Router) {
					r.Use(admin)
					r.Post("/", roomHandler.Create)
					r.Put("/{id}", roomHandler.Update)
					r.Delete("/{id}", roomHandler.Deactivate)
				})
			})

			r.Get("/availability", roomHandler.Availability)

			r.Route("/bookings", func(r chi.Router) {
				r.Get("/", bookingHandler.List)
				r.Post("/", bookingHandler.Create)
				r.Post("/check", bookingHandler.Check)
				r.Get("/{id}", bookingHandler.Get)
				r.Put("/{id}", bookingHandler.Update)
				r.Post("/{id}/cancel", bookingHandler.Cancel)
				r.Post("/{id}/confirm", bookingHandler.Confirm)
				r.Get("/{id}/occurrences", bookingHandler.Occurrences)
				r.Get("/{id}/ics", bookingHandler.ICS)
				r.Post("/{id}/attachment", bookingHandler.UploadAttachment)
				r.Get("/{id}/attachment", bookingHandler.DownloadAttachment)
			})

			r.Get("/dashboard/stats", dashboardHandler.Stats)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.List)
				r.Post("/read-all", notificationHandler.MarkAllRead)
				r.Post("/{id}/read", notificationHandler.MarkRead)
			})

			r.With(admin).Get("/audit-logs", auditHandler.List)

			r.Route("/settings", func(r chi.Router) {
				r.Use(admin)
				r.Get("/email", settingsHandler.GetEmail)
				r.Put("/email", settingsHandler.UpdateEmail)
			})

			r.Route("/calendar/credentials", func(r chi.Router) {
				r.Get("/", calendarHandler.Get)
				r.Put("/", calendarHandler.Link)
				r.Delete("/", calendarHandler.Unlink)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not found"}`))
	})

	return &Router{r}
}
