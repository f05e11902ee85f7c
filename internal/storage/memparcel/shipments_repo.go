package memparcel

import (
	"context"
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/models"
)

func (s *Storage) CreateShipment(ctx context.Context, sh *models.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.shipments[sh.TrackingNumber]; ok {
		return apperr.Conflict("Tracking number already exists")
	}
	if _, ok := s.partners[sh.PartnerID]; !ok {
		return apperr.NotFound("Partner")
	}
	c := sh.Clone()
	c.Partner = nil
	s.shipments[c.TrackingNumber] = &shipmentRec{seq: s.nextSeq(), s: c}
	return nil
}

// GetShipment returns inactive shipments too; callers decide visibility.
func (s *Storage) GetShipment(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.shipments[trackingNumber]
	if !ok {
		return nil, apperr.NotFound("Shipment")
	}
	return s.withPartner(r.s), nil
}

func (s *Storage) AppendShipmentEvent(ctx context.Context, trackingNumber, partnerID string, ev models.TrackingEvent) (*models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.shipments[trackingNumber]
	if !ok || !r.s.IsActive || r.s.PartnerID != partnerID {
		return nil, apperr.NotFound("Shipment")
	}
	r.s.AppendEvent(ev.Clone())
	return s.withPartner(r.s), nil
}

func (s *Storage) UpdateShipment(ctx context.Context, trackingNumber, partnerID string, patch models.ShipmentPatch, now time.Time) (*models.Shipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.shipments[trackingNumber]
	if !ok || !r.s.IsActive || r.s.PartnerID != partnerID {
		return nil, apperr.NotFound("Shipment")
	}
	patch.Apply(r.s, now)
	return s.withPartner(r.s), nil
}

func (s *Storage) ListShipmentsByRecipientEmail(ctx context.Context, email string) ([]*models.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []*shipmentRec
	for _, r := range s.shipments {
		if r.s.IsActive && lower(r.s.Recipient.Email) == lower(email) {
			recs = append(recs, r)
		}
	}
	s.sortShipments(recs)

	out := make([]*models.Shipment, 0, len(recs))
	for _, r := range recs {
		out = append(out, s.withPartner(r.s))
	}
	return out, nil
}

func (s *Storage) ListShipmentsByPartner(ctx context.Context, partnerID string, f models.ShipmentFilter) (models.Page[*models.Shipment], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page, limit := models.NormalizePaging(f.Page, f.Limit)
	var recs []*shipmentRec
	for _, r := range s.shipments {
		if !r.s.IsActive || r.s.PartnerID != partnerID {
			continue
		}
		if f.Status != nil && r.s.CurrentStatus != *f.Status {
			continue
		}
		if !inRange(r.s.CreatedAt, f.From, f.To) {
			continue
		}
		recs = append(recs, r)
	}
	s.sortShipments(recs)

	out := make([]*models.Shipment, 0, limit)
	for _, r := range paginate(recs, page, limit) {
		out = append(out, s.withPartner(r.s))
	}
	return models.NewPage(out, len(recs), page, limit), nil
}

func (s *Storage) ShipmentStatusCounts(ctx context.Context, partnerID string, from, to *time.Time) (map[models.ShipmentStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := map[models.ShipmentStatus]int{}
	for _, r := range s.shipments {
		if !r.s.IsActive || r.s.PartnerID != partnerID || !inRange(r.s.CreatedAt, from, to) {
			continue
		}
		out[r.s.CurrentStatus]++
	}
	return out, nil
}

func (s *Storage) sortShipments(recs []*shipmentRec) {
	newestFirst(recs,
		func(r *shipmentRec) time.Time { return r.s.CreatedAt },
		func(r *shipmentRec) int64 { return r.seq })
}

// withPartner must be called with the lock held.
func (s *Storage) withPartner(sh *models.Shipment) *models.Shipment {
	c := sh.Clone()
	if pr, ok := s.partners[sh.PartnerID]; ok {
		c.Partner = pr.p.Summary()
	}
	return c
}
