package memparcel

import (
	"context"
	"sort"
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/models"
)

func (s *Storage) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[n.ID]; ok {
		return apperr.Conflict("Notification already exists")
	}
	s.notifications[n.ID] = &notificationRec{seq: s.nextSeq(), n: n.Clone()}
	return nil
}

func (s *Storage) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.notifications[id]
	if !ok {
		return nil, apperr.NotFound("Notification")
	}
	return r.n.Clone(), nil
}

// UpdateNotification persists the delivery state; identity fields stay.
func (s *Storage) UpdateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.notifications[n.ID]
	if !ok {
		return apperr.NotFound("Notification")
	}
	cur := r.n
	cur.Status = n.Status
	cur.SentAt = cloneTime(n.SentAt)
	cur.DeliveredAt = cloneTime(n.DeliveredAt)
	cur.FailureReason = n.FailureReason
	cur.RetryCount = n.RetryCount
	cur.NextAttemptAt = cloneTime(n.NextAttemptAt)
	cur.UpdatedAt = n.UpdatedAt
	return nil
}

func (s *Storage) ListNotifications(ctx context.Context, f models.NotificationFilter) (models.Page[*models.Notification], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page, limit := models.NormalizePaging(f.Page, f.Limit)
	recs := s.filterNotifications(f)
	newestFirst(recs,
		func(r *notificationRec) time.Time { return r.n.CreatedAt },
		func(r *notificationRec) int64 { return r.seq })

	out := make([]*models.Notification, 0, limit)
	for _, r := range paginate(recs, page, limit) {
		out = append(out, r.n.Clone())
	}
	return models.NewPage(out, len(recs), page, limit), nil
}

func (s *Storage) NotificationCounts(ctx context.Context, f models.NotificationFilter) (map[models.NotificationStatus]int, map[models.NotificationType]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStatus := map[models.NotificationStatus]int{}
	byType := map[models.NotificationType]int{}
	for _, r := range s.filterNotifications(f) {
		byStatus[r.n.Status]++
		byType[r.n.Type]++
	}
	return byStatus, byType, nil
}

// ClaimDueNotifications leases failed notifications whose retry is due by
// pushing nextAttemptAt forward, so a second claim in the lease window
// does not return them again.
func (s *Storage) ClaimDueNotifications(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*notificationRec
	for _, r := range s.notifications {
		n := r.n
		if n.Status == models.NotificationFailed && n.NextAttemptAt != nil && !n.NextAttemptAt.After(now) {
			due = append(due, r)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].n.NextAttemptAt.Equal(*due[j].n.NextAttemptAt) {
			return due[i].n.NextAttemptAt.Before(*due[j].n.NextAttemptAt)
		}
		return due[i].seq < due[j].seq
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	leaseUntil := now.Add(lease)
	out := make([]*models.Notification, 0, len(due))
	for _, r := range due {
		t := leaseUntil
		r.n.NextAttemptAt = &t
		out = append(out, r.n.Clone())
	}
	return out, nil
}

func (s *Storage) filterNotifications(f models.NotificationFilter) []*notificationRec {
	var out []*notificationRec
	for _, r := range s.notifications {
		n := r.n
		if f.PartnerID != "" && n.PartnerID != f.PartnerID {
			continue
		}
		if f.TrackingNumber != "" && n.TrackingNumber != f.TrackingNumber {
			continue
		}
		if f.Status != nil && n.Status != *f.Status {
			continue
		}
		if f.Type != nil && n.Type != *f.Type {
			continue
		}
		if !inRange(n.CreatedAt, f.From, f.To) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
