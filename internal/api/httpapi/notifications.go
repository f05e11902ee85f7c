package httpapi

import (
	"net/http"

	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/BearBump/ParcelTrack/internal/services/notifications"
	"github.com/go-chi/chi/v5"
)

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	n, err := s.notifications.Subscribe(r.Context(), req.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Successfully subscribed to notifications", map[string]any{"notification": n})
}

func (s *Server) notificationHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.notifications.History(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", map[string]any{"notifications": list})
}

func (s *Server) sendNotification(w http.ResponseWriter, r *http.Request) {
	var req sendNotificationRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	n, err := s.notifications.SendManual(r.Context(), partnerFrom(r.Context()), req.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Notification sent successfully", map[string]any{"notification": n})
}

func (s *Server) notificationStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	stats, err := s.notifications.Stats(r.Context(), partnerFrom(r.Context()), from, to)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", stats)
}

func (s *Server) failedNotifications(w http.ResponseWriter, r *http.Request) {
	pq, err := parsePaging(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	page, err := s.notifications.ListFailed(r.Context(), partnerFrom(r.Context()), pq.page, pq.limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", page)
}

func (s *Server) notificationTemplates(w http.ResponseWriter, r *http.Request) {
	ok(w, http.StatusOK, "", map[string]any{"templates": notifications.Templates()})
}

func (s *Server) retryNotification(w http.ResponseWriter, r *http.Request) {
	n, err := s.notifications.ManualRetry(r.Context(), partnerFrom(r.Context()), chi.URLParam(r, "notificationId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Notification retry initiated", map[string]any{"notification": n})
}

func (s *Server) cancelNotification(w http.ResponseWriter, r *http.Request) {
	n, err := s.notifications.Cancel(r.Context(), partnerFrom(r.Context()), chi.URLParam(r, "notificationId"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Notification retry canceled", map[string]any{"notification": n})
}

func (s *Server) allNotifications(w http.ResponseWriter, r *http.Request) {
	pq, err := parsePaging(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	q := r.URL.Query()
	f := models.NotificationFilter{
		PartnerID:      q.Get("partnerId"),
		TrackingNumber: q.Get("trackingNumber"),
		From:           from,
		To:             to,
		Page:           pq.page,
		Limit:          pq.limit,
	}
	if raw := q.Get("status"); raw != "" {
		st := models.NotificationStatus(raw)
		f.Status = &st
	}
	if raw := q.Get("type"); raw != "" {
		t := models.NotificationType(raw)
		f.Type = &t
	}
	page, err := s.notifications.ListAll(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", page)
}
