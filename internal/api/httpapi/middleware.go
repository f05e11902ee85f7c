package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/auth"
	"github.com/BearBump/ParcelTrack/internal/cache/rediscache"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey struct{}

func withIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func identityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(ctxKey{}).(auth.Identity)
	return id
}

func partnerFrom(ctx context.Context) *models.Partner {
	p, _ := auth.PartnerOf(identityFrom(ctx))
	return p
}

func userFrom(ctx context.Context) *models.User {
	u, _ := auth.UserOf(identityFrom(ctx))
	return u
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// requireToken resolves a bearer token into an identity.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			fail(w, r, apperr.Auth("Access token required"))
			return
		}
		id, err := s.authn.AuthenticateToken(r.Context(), token)
		if err != nil {
			fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// requireAPIKey resolves X-API-Key into a partner identity and applies the
// partner's hourly quota.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.authn.AuthenticateAPIKey(r.Context(), r.Header.Get("X-API-Key"))
		if err != nil {
			fail(w, r, err)
			return
		}
		if err := s.checkQuota(w, r, id); err != nil {
			fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// requirePartnerKeyOrToken prefers X-API-Key and falls back to a partner
// bearer token.
func (s *Server) requirePartnerKeyOrToken(next http.Handler) http.Handler {
	byKey := s.requireAPIKey(next)
	byToken := s.requireToken(requireRoles("Partner access required", models.RolePartner)(next))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "" {
			byKey.ServeHTTP(w, r)
			return
		}
		byToken.ServeHTTP(w, r)
	})
}

func requireRoles(message string, roles ...models.Role) func(http.Handler) http.Handler {
	if message == "" {
		message = "Insufficient permissions"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identityFrom(r.Context())
			if id == nil {
				fail(w, r, apperr.Auth("Authentication required"))
				return
			}
			if !auth.Authorize(id, roles...) {
				fail(w, r, apperr.Forbidden(message))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkQuota counts API-key requests per partner per clock hour. A limiter
// outage lets the request through.
func (s *Server) checkQuota(w http.ResponseWriter, r *http.Request, id auth.Identity) error {
	p, isPartner := auth.PartnerOf(id)
	if s.limiter == nil || !isPartner {
		return nil
	}
	limit := int64(p.RateLimit.RequestsPerHour)
	if limit <= 0 {
		limit = int64(models.DefaultRateLimit().RequestsPerHour)
	}
	key := rediscache.HourKey("partner", p.ID, s.now())
	allowed, count, err := s.limiter.Allow(r.Context(), key, limit, time.Hour)
	if err != nil {
		slog.Warn("rate limiter unavailable", "partner_id", p.ID, "err", err)
		return nil
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	if !allowed {
		s.metrics.RateLimited()
		slog.Warn("partner rate limit exceeded", "partner_id", p.ID, "count", count)
		return apperr.RateLimited("Rate limit exceeded, please try again later.")
	}
	return nil
}

// observe logs each request and records it under its route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(r.Method, route, strconv.Itoa(status), elapsed.Seconds())
		slog.Info("http request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
