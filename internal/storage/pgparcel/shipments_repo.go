package pgparcel

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const shipmentCols = `
  s.id, s.tracking_number, s.partner_tracking_number, s.partner_id,
  p.company_name, p.partner_type,
  s.sender, s.recipient, s.package, s.service_type, s.current_status,
  s.estimated_delivery_date, s.actual_delivery_date,
  s.events, s.is_active, s.metadata, s.created_at, s.updated_at`

func scanShipment(r rowScanner) (*models.Shipment, error) {
	var sh models.Shipment
	var companyName, partnerType, serviceType, status string
	if err := r.Scan(
		&sh.ID, &sh.TrackingNumber, &sh.PartnerTrackingNumber, &sh.PartnerID,
		&companyName, &partnerType,
		&sh.Sender, &sh.Recipient, &sh.Package, &serviceType, &status,
		&sh.EstimatedDeliveryDate, &sh.ActualDeliveryDate,
		&sh.Events, &sh.IsActive, &sh.Metadata, &sh.CreatedAt, &sh.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sh.Partner = &models.PartnerSummary{CompanyName: companyName, PartnerType: models.PartnerType(partnerType)}
	sh.ServiceType = models.ServiceType(serviceType)
	sh.CurrentStatus = models.ShipmentStatus(status)
	if sh.Events == nil {
		sh.Events = []models.TrackingEvent{}
	}
	return &sh, nil
}

func (s *Storage) CreateShipment(ctx context.Context, sh *models.Shipment) error {
	events := sh.Events
	if events == nil {
		events = []models.TrackingEvent{}
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO shipments (
  id, tracking_number, partner_tracking_number, partner_id,
  sender, recipient, recipient_email, package, service_type, current_status,
  estimated_delivery_date, actual_delivery_date, events, is_active, metadata,
  created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`, sh.ID, sh.TrackingNumber, sh.PartnerTrackingNumber, sh.PartnerID,
		sh.Sender, sh.Recipient, strings.ToLower(sh.Recipient.Email), sh.Package,
		string(sh.ServiceType), string(sh.CurrentStatus),
		sh.EstimatedDeliveryDate, sh.ActualDeliveryDate, events, sh.IsActive, sh.Metadata,
		sh.CreatedAt, sh.UpdatedAt)
	return dbErr(err, "insert shipment", "Shipment", "Tracking number already exists")
}

func (s *Storage) GetShipment(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	sh, err := scanShipment(s.db.QueryRow(ctx, `
SELECT `+shipmentCols+`
FROM shipments s JOIN partners p ON p.id = s.partner_id
WHERE s.tracking_number = $1
`, trackingNumber))
	if err != nil {
		return nil, dbErr(err, "select shipment", "Shipment", "")
	}
	return sh, nil
}

// AppendShipmentEvent is one UPDATE: the event lands at the end of the JSONB
// array and current_status follows it in the same row write. Only the owner
// of an active shipment matches the WHERE clause.
func (s *Storage) AppendShipmentEvent(ctx context.Context, trackingNumber, partnerID string, ev models.TrackingEvent) (*models.Shipment, error) {
	sh, err := scanShipment(s.db.QueryRow(ctx, `
WITH s AS (
  UPDATE shipments SET
    events = events || jsonb_build_array($3::jsonb),
    current_status = $4,
    actual_delivery_date = CASE
      WHEN $5::boolean AND actual_delivery_date IS NULL THEN $6::timestamptz
      ELSE actual_delivery_date
    END,
    updated_at = GREATEST(updated_at, $7::timestamptz)
  WHERE tracking_number = $1 AND partner_id = $2 AND is_active
  RETURNING *
)
SELECT `+shipmentCols+`
FROM s JOIN partners p ON p.id = s.partner_id
`, trackingNumber, partnerID, ev, string(ev.Status),
		ev.EventType == models.EventDelivered, ev.Timestamp.UTC(), ev.CreatedAt.UTC()))
	if err != nil {
		return nil, dbErr(err, "append shipment event", "Shipment", "")
	}
	return sh, nil
}

func (s *Storage) UpdateShipment(ctx context.Context, trackingNumber, partnerID string, patch models.ShipmentPatch, now time.Time) (*models.Shipment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, dbErr(err, "begin tx", "Shipment", "")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sh, err := scanShipment(tx.QueryRow(ctx, `
SELECT `+shipmentCols+`
FROM shipments s JOIN partners p ON p.id = s.partner_id
WHERE s.tracking_number = $1 AND s.partner_id = $2 AND s.is_active
FOR UPDATE OF s
`, trackingNumber, partnerID))
	if err != nil {
		return nil, dbErr(err, "select shipment for update", "Shipment", "")
	}

	patch.Apply(sh, now.UTC())

	_, err = tx.Exec(ctx, `
UPDATE shipments SET
  partner_tracking_number = $2, sender = $3, recipient = $4, recipient_email = $5,
  package = $6, service_type = $7, estimated_delivery_date = $8, metadata = $9,
  is_active = $10, updated_at = $11
WHERE id = $1
`, sh.ID, sh.PartnerTrackingNumber, sh.Sender, sh.Recipient, strings.ToLower(sh.Recipient.Email),
		sh.Package, string(sh.ServiceType), sh.EstimatedDeliveryDate, sh.Metadata,
		sh.IsActive, sh.UpdatedAt)
	if err != nil {
		return nil, dbErr(err, "update shipment", "Shipment", "")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dbErr(err, "commit tx", "Shipment", "")
	}
	return sh, nil
}

func (s *Storage) ListShipmentsByRecipientEmail(ctx context.Context, email string) ([]*models.Shipment, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+shipmentCols+`
FROM shipments s JOIN partners p ON p.id = s.partner_id
WHERE s.recipient_email = $1 AND s.is_active
ORDER BY s.created_at DESC, s.id DESC
`, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, dbErr(err, "select shipments by email", "Shipment", "")
	}
	return collectShipments(rows)
}

func (s *Storage) ListShipmentsByPartner(ctx context.Context, partnerID string, f models.ShipmentFilter) (models.Page[*models.Shipment], error) {
	page, limit := models.NormalizePaging(f.Page, f.Limit)
	where := `
WHERE s.partner_id = $1 AND s.is_active
  AND ($2::text IS NULL OR s.current_status = $2)
  AND ($3::timestamptz IS NULL OR s.created_at >= $3)
  AND ($4::timestamptz IS NULL OR s.created_at <= $4)`
	args := []any{partnerID, strPtr(f.Status), f.From, f.To}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM shipments s `+where, args...).Scan(&total); err != nil {
		return models.Page[*models.Shipment]{}, dbErr(err, "count shipments", "Shipment", "")
	}

	rows, err := s.db.Query(ctx, `
SELECT `+shipmentCols+`
FROM shipments s JOIN partners p ON p.id = s.partner_id
`+where+`
ORDER BY s.created_at DESC, s.id DESC
LIMIT $5 OFFSET $6
`, append(args, limit, pageOffset(page, limit))...)
	if err != nil {
		return models.Page[*models.Shipment]{}, dbErr(err, "select shipments", "Shipment", "")
	}
	docs, err := collectShipments(rows)
	if err != nil {
		return models.Page[*models.Shipment]{}, err
	}
	return models.NewPage(docs, total, page, limit), nil
}

func (s *Storage) ShipmentStatusCounts(ctx context.Context, partnerID string, from, to *time.Time) (map[models.ShipmentStatus]int, error) {
	rows, err := s.db.Query(ctx, `
SELECT current_status, count(*)
FROM shipments
WHERE partner_id = $1 AND is_active
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at <= $3)
GROUP BY current_status
`, partnerID, from, to)
	if err != nil {
		return nil, dbErr(err, "count shipments by status", "Shipment", "")
	}
	defer rows.Close()

	out := map[models.ShipmentStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan status count")
		}
		out[models.ShipmentStatus(status)] = n
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func collectShipments(rows pgx.Rows) ([]*models.Shipment, error) {
	defer rows.Close()

	var out []*models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	if out == nil {
		out = []*models.Shipment{}
	}
	return out, nil
}
