package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/BearBump/ParcelTrack/internal/auth"
	"github.com/BearBump/ParcelTrack/internal/metrics"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/BearBump/ParcelTrack/internal/services/identity"
	"github.com/BearBump/ParcelTrack/internal/services/notifications"
	"github.com/BearBump/ParcelTrack/internal/services/shipments"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Deps struct {
	Shipments     *shipments.Service
	Notifications *notifications.Dispatcher
	Identity      *identity.Service
	Authn         *auth.Authenticator
	Limiter       RateLimiter
	Metrics       *metrics.Metrics
}

type Server struct {
	shipments     *shipments.Service
	notifications *notifications.Dispatcher
	identity      *identity.Service
	authn         *auth.Authenticator
	limiter       RateLimiter
	metrics       *metrics.Metrics

	now func() time.Time
}

func New(d Deps) *Server {
	return &Server{
		shipments:     d.Shipments,
		notifications: d.Notifications,
		identity:      d.Identity,
		authn:         d.Authn,
		limiter:       d.Limiter,
		metrics:       d.Metrics,
		now:           time.Now,
	}
}

// Routes builds the whole /api/v1 surface plus /health.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Message: "Route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Message: "Method not allowed"})
	})
	r.Get("/health", s.health)

	customerOrAdmin := requireRoles("", models.RoleCustomer, models.RoleAdmin)
	partnerOnly := requireRoles("", models.RolePartner)
	adminOnly := requireRoles("", models.RoleAdmin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.registerUser)
			r.Post("/login", s.loginUser)
			r.Post("/partner/register", s.registerPartner)
			r.Post("/partner/login", s.loginPartner)
			r.Post("/refresh", s.refresh)
			r.With(s.requireToken).Get("/profile", s.profile)
		})

		r.Route("/shipments", func(r chi.Router) {
			r.Get("/search/by-email", s.shipmentsByEmail)
			r.Get("/{trackingNumber}", s.getShipment)
			r.Get("/{trackingNumber}/events", s.shipmentEvents)

			r.With(s.requirePartnerKeyOrToken).Post("/", s.createShipment)
			r.With(s.requireAPIKey).Post("/{trackingNumber}/events", s.appendEvent)

			r.Group(func(r chi.Router) {
				r.Use(s.requireToken, partnerOnly)
				r.Get("/", s.listShipments)
				r.Get("/stats/overview", s.shipmentStats)
				r.Put("/{trackingNumber}", s.updateShipment)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(s.requireToken)
			r.With(customerOrAdmin).Get("/me", s.getMe)
			r.With(customerOrAdmin).Put("/me", s.updateMe)
			r.With(requireRoles("", models.RoleCustomer)).Delete("/me", s.deleteMe)
			r.With(customerOrAdmin).Get("/me/preferences", s.getPreferences)
			r.With(customerOrAdmin).Put("/me/preferences", s.updatePreferences)
			r.With(customerOrAdmin).Get("/me/notifications", s.myNotifications)
			r.With(customerOrAdmin).Post("/me/subscriptions", s.mySubscription)
		})

		r.Route("/partners", func(r chi.Router) {
			r.Use(s.requireToken)
			r.Group(func(r chi.Router) {
				r.Use(partnerOnly)
				r.Get("/me", s.getPartner)
				r.Put("/me", s.updatePartner)
				r.Post("/me/regenerate-credentials", s.regenerateCredentials)
				r.Get("/me/stats", s.partnerStats)
				r.Get("/me/service-areas", s.getServiceAreas)
				r.Put("/me/service-areas", s.updateServiceAreas)
				r.Put("/me/webhook", s.updateWebhook)
				r.Get("/me/rate-limits", s.rateLimits)
			})
			r.With(adminOnly).Get("/", s.listPartners)
			r.With(adminOnly).Patch("/{partnerId}/status", s.setPartnerStatus)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/subscribe", s.subscribe)
			r.Get("/history/{trackingNumber}", s.notificationHistory)

			r.Group(func(r chi.Router) {
				r.Use(s.requireToken, partnerOnly)
				r.Post("/send", s.sendNotification)
				r.Get("/stats", s.notificationStats)
				r.Get("/failed", s.failedNotifications)
				r.Get("/templates", s.notificationTemplates)
				r.Post("/{notificationId}/retry", s.retryNotification)
				r.Post("/{notificationId}/cancel", s.cancelNotification)
			})
			r.With(s.requireToken, adminOnly).Get("/admin/all", s.allNotifications)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"service":   "ParcelTrack API",
	})
}
