package httpapi

import (
	"net/http"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/auth"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/BearBump/ParcelTrack/internal/services/identity"
	"github.com/BearBump/ParcelTrack/internal/services/notifications"
	"github.com/go-chi/chi/v5"
)

func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req identity.RegisterUserInput
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sess, err := s.identity.RegisterUser(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "User registered successfully", map[string]any{"user": sess.Subject, "token": sess.Token})
}

func (s *Server) loginUser(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sess, err := s.identity.LoginUser(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Login successful", map[string]any{"user": sess.Subject, "token": sess.Token})
}

func (s *Server) registerPartner(w http.ResponseWriter, r *http.Request) {
	var req identity.RegisterPartnerInput
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	reg, err := s.identity.RegisterPartner(r.Context(), req)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "Partner registered successfully", map[string]any{
		"partner":     reg.Partner,
		"credentials": reg.Credentials,
		"token":       reg.Token,
	})
}

func (s *Server) loginPartner(w http.ResponseWriter, r *http.Request) {
	var req partnerLoginRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sess, err := s.identity.LoginPartner(r.Context(), req.APIKey, req.APISecret)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Login successful", map[string]any{"partner": sess.Subject, "token": sess.Token})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	token := req.RefreshToken
	if token == "" {
		token = bearerToken(r)
	}
	fresh, _, err := s.identity.Refresh(r.Context(), token)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", map[string]any{"token": fresh})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	view, err := s.identity.Profile(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	key := "user"
	if _, isPartner := id.(auth.PartnerIdentity); isPartner {
		key = "partner"
	}
	ok(w, http.StatusOK, "", map[string]any{key: view})
}

func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	view, err := s.identity.Profile(r.Context(), identityFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", map[string]any{"user": view})
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := s.identity.UpdateUserProfile(r.Context(), userFrom(r.Context()), req.patch())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Profile updated successfully", map[string]any{"user": u})
}

func (s *Server) deleteMe(w http.ResponseWriter, r *http.Request) {
	if err := s.identity.DeleteUser(r.Context(), identityFrom(r.Context())); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Account deleted successfully", nil)
}

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.identity.GetPreferences(r.Context(), userFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", map[string]any{"preferences": prefs})
}

func (s *Server) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	prefs, err := s.identity.UpdatePreferences(r.Context(), userFrom(r.Context()), req.Preferences)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Preferences updated successfully", map[string]any{"preferences": prefs})
}

func (s *Server) myNotifications(w http.ResponseWriter, r *http.Request) {
	tn := r.URL.Query().Get("trackingNumber")
	if tn == "" {
		fail(w, r, apperr.Validation("Tracking number is required"))
		return
	}
	list, err := s.notifications.HistoryFor(r.Context(), tn, userFrom(r.Context()).Email)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", map[string]any{"notifications": list})
}

// mySubscription subscribes the caller, defaulting to the account email, and
// stores any preference changes sent along.
func (s *Server) mySubscription(w http.ResponseWriter, r *http.Request) {
	var req userSubscriptionRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u := userFrom(r.Context())
	if req.Preferences != nil {
		if _, err := s.identity.UpdatePreferences(r.Context(), u, *req.Preferences); err != nil {
			fail(w, r, err)
			return
		}
	}
	email := req.Email
	if email == "" && req.Phone == "" {
		email = u.Email
	}
	n, err := s.notifications.Subscribe(r.Context(), notifications.SubscribeInput{
		TrackingNumber: req.TrackingNumber, Email: email, Phone: req.Phone,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Successfully subscribed to notifications", map[string]any{"notification": n})
}

func (s *Server) getPartner(w http.ResponseWriter, r *http.Request) {
	view, err := s.identity.Profile(r.Context(), identityFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", map[string]any{"partner": view})
}

func (s *Server) updatePartner(w http.ResponseWriter, r *http.Request) {
	var req updatePartnerRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.identity.UpdatePartnerProfile(r.Context(), partnerFrom(r.Context()), req.patch())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Partner profile updated successfully", map[string]any{"partner": p})
}

func (s *Server) regenerateCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.identity.RegenerateCredentials(r.Context(), partnerFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "API credentials regenerated successfully", map[string]any{"credentials": creds})
}

func (s *Server) partnerStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	p := partnerFrom(r.Context())
	stats, err := s.shipments.Stats(r.Context(), p, from, to)
	if err != nil {
		fail(w, r, err)
		return
	}
	recent, err := s.shipments.ListForPartner(r.Context(), p, models.ShipmentFilter{From: from, To: to, Page: 1, Limit: 10})
	if err != nil {
		fail(w, r, err)
		return
	}
	rows := make([]recentShipment, 0, len(recent.Docs))
	for _, sh := range recent.Docs {
		rows = append(rows, recentShipment{
			TrackingNumber: sh.TrackingNumber,
			CurrentStatus:  sh.CurrentStatus,
			RecipientName:  sh.Recipient.Name,
			CreatedAt:      sh.CreatedAt,
		})
	}
	ok(w, http.StatusOK, "", map[string]any{
		"totalShipments":  stats.TotalShipments,
		"statusBreakdown": stats.StatusBreakdown,
		"deliveryRate":    stats.DeliveryRate,
		"recentShipments": rows,
		"period":          stats.Period,
	})
}

func (s *Server) getServiceAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := s.identity.ServiceAreas(r.Context(), partnerFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", map[string]any{"serviceAreas": areas})
}

func (s *Server) updateServiceAreas(w http.ResponseWriter, r *http.Request) {
	var req serviceAreasRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	areas, err := s.identity.UpdateServiceAreas(r.Context(), partnerFrom(r.Context()), req.ServiceAreas)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Service areas updated successfully", map[string]any{"serviceAreas": areas})
}

func (s *Server) updateWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.identity.UpdateWebhook(r.Context(), partnerFrom(r.Context()), req.WebhookURL)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Webhook URL updated successfully", map[string]any{"webhookUrl": p.WebhookURL})
}

func (s *Server) rateLimits(w http.ResponseWriter, r *http.Request) {
	rl, err := s.identity.RateLimits(r.Context(), partnerFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", map[string]any{"rateLimit": rl})
}

func (s *Server) listPartners(w http.ResponseWriter, r *http.Request) {
	pq, err := parsePaging(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	f := models.PartnerFilter{Page: pq.page, Limit: pq.limit}
	q := r.URL.Query()
	switch q.Get("isActive") {
	case "":
	case "true":
		v := true
		f.IsActive = &v
	case "false":
		v := false
		f.IsActive = &v
	default:
		fail(w, r, apperr.Validation("", apperr.FieldError{Field: "isActive", Message: "isActive must be true or false"}))
		return
	}
	if raw := q.Get("partnerType"); raw != "" {
		pt := models.PartnerType(raw)
		f.PartnerType = &pt
	}
	page, err := s.identity.ListPartners(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", page)
}

func (s *Server) setPartnerStatus(w http.ResponseWriter, r *http.Request) {
	var req partnerStatusRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := s.identity.SetPartnerActive(r.Context(), chi.URLParam(r, "partnerId"), *req.IsActive)
	if err != nil {
		fail(w, r, err)
		return
	}
	msg := "Partner deactivated successfully"
	if p.IsActive {
		msg = "Partner activated successfully"
	}
	ok(w, http.StatusOK, msg, map[string]any{"partner": p})
}
