package pgparcel

import (
	"context"
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const notificationCols = `id, tracking_number, shipment_id, partner_id, type, event, recipient, subject, message,
  status, sent_at, delivered_at, failure_reason, retry_count, next_attempt_at, metadata, created_at, updated_at`

func scanNotification(r rowScanner) (*models.Notification, error) {
	var n models.Notification
	var typ, status string
	if err := r.Scan(
		&n.ID, &n.TrackingNumber, &n.ShipmentID, &n.PartnerID, &typ, &n.Event, &n.Recipient, &n.Subject, &n.Message,
		&status, &n.SentAt, &n.DeliveredAt, &n.FailureReason, &n.RetryCount, &n.NextAttemptAt, &n.Metadata,
		&n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	n.Type = models.NotificationType(typ)
	n.Status = models.NotificationStatus(status)
	return &n, nil
}

func (s *Storage) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO notifications (`+notificationCols+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
`, n.ID, n.TrackingNumber, n.ShipmentID, n.PartnerID, string(n.Type), n.Event, n.Recipient, n.Subject, n.Message,
		string(n.Status), n.SentAt, n.DeliveredAt, n.FailureReason, n.RetryCount, n.NextAttemptAt, n.Metadata,
		n.CreatedAt, n.UpdatedAt)
	return dbErr(err, "insert notification", "Notification", "Notification already exists")
}

func (s *Storage) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	n, err := scanNotification(s.db.QueryRow(ctx, `SELECT `+notificationCols+` FROM notifications WHERE id = $1`, id))
	if err != nil {
		return nil, dbErr(err, "select notification", "Notification", "")
	}
	return n, nil
}

func (s *Storage) UpdateNotification(ctx context.Context, n *models.Notification) error {
	tag, err := s.db.Exec(ctx, `
UPDATE notifications SET
  status = $2, sent_at = $3, delivered_at = $4, failure_reason = $5,
  retry_count = $6, next_attempt_at = $7, updated_at = $8
WHERE id = $1
`, n.ID, string(n.Status), n.SentAt, n.DeliveredAt, n.FailureReason, n.RetryCount, n.NextAttemptAt, n.UpdatedAt)
	if err != nil {
		return dbErr(err, "update notification", "Notification", "")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Notification")
	}
	return nil
}

const notificationWhere = `
WHERE ($1::text = '' OR partner_id = $1)
  AND ($2::text = '' OR tracking_number = $2)
  AND ($3::text IS NULL OR status = $3)
  AND ($4::text IS NULL OR type = $4)
  AND ($5::timestamptz IS NULL OR created_at >= $5)
  AND ($6::timestamptz IS NULL OR created_at <= $6)`

func notificationArgs(f models.NotificationFilter) []any {
	return []any{f.PartnerID, f.TrackingNumber, strPtr(f.Status), strPtr(f.Type), f.From, f.To}
}

func (s *Storage) ListNotifications(ctx context.Context, f models.NotificationFilter) (models.Page[*models.Notification], error) {
	page, limit := models.NormalizePaging(f.Page, f.Limit)
	args := notificationArgs(f)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM notifications `+notificationWhere, args...).Scan(&total); err != nil {
		return models.Page[*models.Notification]{}, dbErr(err, "count notifications", "Notification", "")
	}

	rows, err := s.db.Query(ctx, `
SELECT `+notificationCols+` FROM notifications `+notificationWhere+`
ORDER BY created_at DESC, id DESC
LIMIT $7 OFFSET $8
`, append(args, limit, pageOffset(page, limit))...)
	if err != nil {
		return models.Page[*models.Notification]{}, dbErr(err, "select notifications", "Notification", "")
	}
	docs, err := collectNotifications(rows)
	if err != nil {
		return models.Page[*models.Notification]{}, err
	}
	return models.NewPage(docs, total, page, limit), nil
}

func (s *Storage) NotificationCounts(ctx context.Context, f models.NotificationFilter) (map[models.NotificationStatus]int, map[models.NotificationType]int, error) {
	rows, err := s.db.Query(ctx, `
SELECT status, type, count(*) FROM notifications `+notificationWhere+`
GROUP BY status, type
`, notificationArgs(f)...)
	if err != nil {
		return nil, nil, dbErr(err, "count notifications", "Notification", "")
	}
	defer rows.Close()

	byStatus := map[models.NotificationStatus]int{}
	byType := map[models.NotificationType]int{}
	for rows.Next() {
		var status, typ string
		var n int
		if err := rows.Scan(&status, &typ, &n); err != nil {
			return nil, nil, errors.Wrap(err, "scan notification count")
		}
		byStatus[models.NotificationStatus(status)] += n
		byType[models.NotificationType(typ)] += n
	}
	if rows.Err() != nil {
		return nil, nil, errors.Wrap(rows.Err(), "rows")
	}
	return byStatus, byType, nil
}

// ClaimDueNotifications выбирает упавшие уведомления, у которых подошло время
// повтора, и "бронирует" их сдвигом next_attempt_at на lease.
// Использует SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueNotifications(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Notification, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, dbErr(err, "begin tx", "Notification", "")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT `+notificationCols+`
FROM notifications
WHERE status = $1
  AND next_attempt_at IS NOT NULL
  AND next_attempt_at <= $2
ORDER BY next_attempt_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`, string(models.NotificationFailed), now.UTC(), limit)
	if err != nil {
		return nil, dbErr(err, "select due notifications", "Notification", "")
	}
	picked, err := collectNotifications(rows)
	if err != nil {
		return nil, err
	}
	if len(picked) == 0 {
		return picked, nil
	}

	ids := make([]string, 0, len(picked))
	for _, n := range picked {
		ids = append(ids, n.ID)
	}
	leaseUntil := now.UTC().Add(lease)
	if _, err := tx.Exec(ctx, `UPDATE notifications SET next_attempt_at = $2 WHERE id = ANY($1)`, ids, leaseUntil); err != nil {
		return nil, dbErr(err, "lease notifications", "Notification", "")
	}
	for _, n := range picked {
		t := leaseUntil
		n.NextAttemptAt = &t
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dbErr(err, "commit tx", "Notification", "")
	}
	return picked, nil
}

func collectNotifications(rows pgx.Rows) ([]*models.Notification, error) {
	defer rows.Close()

	out := []*models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
