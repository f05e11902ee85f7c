package shipments

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/broker/messages"
	"github.com/BearBump/ParcelTrack/internal/cache"
	"github.com/BearBump/ParcelTrack/internal/metrics"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/BearBump/ParcelTrack/internal/validation"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateShipment(ctx context.Context, sh *models.Shipment) error
	GetShipment(ctx context.Context, trackingNumber string) (*models.Shipment, error)
	AppendShipmentEvent(ctx context.Context, trackingNumber, partnerID string, ev models.TrackingEvent) (*models.Shipment, error)
	UpdateShipment(ctx context.Context, trackingNumber, partnerID string, patch models.ShipmentPatch, now time.Time) (*models.Shipment, error)
	ListShipmentsByRecipientEmail(ctx context.Context, email string) ([]*models.Shipment, error)
	ListShipmentsByPartner(ctx context.Context, partnerID string, f models.ShipmentFilter) (models.Page[*models.Shipment], error)
	ShipmentStatusCounts(ctx context.Context, partnerID string, from, to *time.Time) (map[models.ShipmentStatus]int, error)
}

// Notifier fans a shipment event out to the recipient. It must not fail the
// mutation that triggered it, hence no error.
type Notifier interface {
	FanOut(ctx context.Context, sh *models.Shipment, eventType models.EventType)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

const maxTrackingNumberAttempts = 5

var TrackingNumberPattern = regexp.MustCompile(`^PT[0-9]+[0-9A-Z]{4}$`)

type Service struct {
	repo      Repository
	cache     cache.BytesCache
	publicTTL time.Duration
	notifier  Notifier

	publisher Publisher
	topic     string
	metrics   *metrics.Metrics

	now               func() time.Time
	newID             func() string
	newTrackingNumber func(time.Time) (string, error)
}

func New(repo Repository, c cache.BytesCache, publicTTL time.Duration, notifier Notifier) *Service {
	return &Service{
		repo:              repo,
		cache:             c,
		publicTTL:         publicTTL,
		notifier:          notifier,
		now:               time.Now,
		newID:             uuid.NewString,
		newTrackingNumber: NewTrackingNumber,
	}
}

// WithPublisher enables shipment.event_appended messages. Publishing is best
// effort.
func (s *Service) WithPublisher(p Publisher, topic string) *Service {
	s.publisher = p
	s.topic = topic
	if s.topic == "" {
		s.topic = messages.ShipmentEventAppendedTopic
	}
	return s
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

type CreateInput struct {
	PartnerTrackingNumber string             `json:"partnerTrackingNumber"`
	Sender                models.Party       `json:"sender"`
	Recipient             models.Party       `json:"recipient"`
	Package               models.Package     `json:"package"`
	ServiceType           models.ServiceType `json:"serviceType" validate:"required,oneof=standard express overnight same_day"`
	EstimatedDeliveryDate *time.Time         `json:"estimatedDeliveryDate"`
	Metadata              map[string]string  `json:"metadata"`
}

type AppendEventInput struct {
	EventType   models.EventType
	Status      models.ShipmentStatus
	Description string
	Location    *models.Location
	Timestamp   *time.Time
	Metadata    map[string]string
}

type EventHistory struct {
	TrackingNumber string                 `json:"trackingNumber"`
	CurrentStatus  models.ShipmentStatus  `json:"currentStatus"`
	Events         []models.TrackingEvent `json:"events"`
}

func (s *Service) Create(ctx context.Context, partner *models.Partner, in CreateInput) (*models.Shipment, error) {
	if err := requireActive(partner); err != nil {
		return nil, err
	}
	if in.ServiceType == "" {
		in.ServiceType = models.ServiceStandard
	}
	trimParty(&in.Sender)
	trimParty(&in.Recipient)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	pkg := in.Package
	pkg.ApplyDefaults()
	created := models.TrackingEvent{
		EventID:     s.newID(),
		EventType:   models.EventShipmentCreated,
		Status:      models.StatusPending,
		Description: "Shipment created and awaiting pickup",
		Timestamp:   now,
		CreatedBy:   models.Actor{PartnerID: partner.ID},
		CreatedAt:   now,
	}

	var lastErr error
	for attempt := 1; attempt <= maxTrackingNumberAttempts; attempt++ {
		tn, err := s.newTrackingNumber(now)
		if err != nil {
			return nil, err
		}
		sh := &models.Shipment{
			ID:                    s.newID(),
			TrackingNumber:        tn,
			PartnerTrackingNumber: in.PartnerTrackingNumber,
			PartnerID:             partner.ID,
			Partner:               partner.Summary(),
			Sender:                in.Sender,
			Recipient:             in.Recipient,
			Package:               pkg,
			ServiceType:           in.ServiceType,
			CurrentStatus:         models.StatusPending,
			EstimatedDeliveryDate: in.EstimatedDeliveryDate,
			Events:                []models.TrackingEvent{created},
			IsActive:              true,
			Metadata:              in.Metadata,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		err = s.repo.CreateShipment(ctx, sh)
		if err == nil {
			slog.Info("shipment created", "tracking_number", tn, "partner_id", partner.ID)
			s.metrics.ShipmentCreated()
			s.afterMutation(ctx, sh, created)
			return sh, nil
		}
		if !apperr.Is(err, apperr.KindConflict) {
			return nil, err
		}
		lastErr = err
		slog.Warn("tracking number collision", "tracking_number", tn, "attempt", attempt)
	}
	return nil, lastErr
}

func (s *Service) AppendEvent(ctx context.Context, partner *models.Partner, trackingNumber string, in AppendEventInput) (*models.Shipment, models.TrackingEvent, error) {
	if err := requireActive(partner); err != nil {
		return nil, models.TrackingEvent{}, err
	}
	status, fields := validateEvent(in)
	if len(fields) > 0 {
		return nil, models.TrackingEvent{}, apperr.Validation("", fields...)
	}

	now := s.now().UTC()
	ts := now
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		ts = in.Timestamp.UTC()
	}
	ev := models.TrackingEvent{
		EventID:     s.newID(),
		EventType:   in.EventType,
		Status:      status,
		Description: in.Description,
		Location:    in.Location,
		Timestamp:   ts,
		CreatedBy:   models.Actor{PartnerID: partner.ID},
		Metadata:    in.Metadata,
		CreatedAt:   now,
	}

	tn := normalizeTN(trackingNumber)
	sh, err := s.repo.AppendShipmentEvent(ctx, tn, partner.ID, ev)
	if err != nil {
		return nil, models.TrackingEvent{}, err
	}
	slog.Info("tracking event added", "tracking_number", tn, "event_type", ev.EventType, "status", ev.Status)
	s.metrics.EventAppended(string(ev.EventType))
	s.afterMutation(ctx, sh, ev)
	return sh, ev, nil
}

// GetPublic never distinguishes missing from deactivated shipments.
func (s *Service) GetPublic(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	tn := normalizeTN(trackingNumber)
	if tn == "" {
		return nil, apperr.NotFound("Shipment")
	}

	if s.cacheEnabled() {
		b, ok, err := s.cache.Get(ctx, publicKey(tn))
		if err == nil && ok {
			if len(b) == 0 {
				return nil, apperr.NotFound("Shipment")
			}
			var sh models.Shipment
			if json.Unmarshal(b, &sh) == nil {
				return &sh, nil
			}
		}
	}

	sh, err := s.repo.GetShipment(ctx, tn)
	if err != nil {
		return nil, err
	}
	s.cachePublic(ctx, sh)
	if !sh.IsActive {
		return nil, apperr.NotFound("Shipment")
	}
	return sh.Public(), nil
}

func (s *Service) ListEvents(ctx context.Context, trackingNumber string) (*EventHistory, error) {
	sh, err := s.GetPublic(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	return &EventHistory{
		TrackingNumber: sh.TrackingNumber,
		CurrentStatus:  sh.CurrentStatus,
		Events:         sh.EventsNewestFirst(),
	}, nil
}

func (s *Service) ListByRecipientEmail(ctx context.Context, email string) ([]*models.Shipment, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.Validation("Email parameter is required", apperr.FieldError{Field: "email", Message: "email is required"})
	}
	list, err := s.repo.ListShipmentsByRecipientEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Shipment, 0, len(list))
	for _, sh := range list {
		out = append(out, sh.Public())
	}
	return out, nil
}

func (s *Service) ListForPartner(ctx context.Context, partner *models.Partner, f models.ShipmentFilter) (models.Page[*models.Shipment], error) {
	if err := requireActive(partner); err != nil {
		return models.Page[*models.Shipment]{}, err
	}
	if f.Status != nil && !f.Status.Valid() {
		return models.Page[*models.Shipment]{}, apperr.Validation("", apperr.FieldError{Field: "status", Message: "status must be one of " + joinStatuses(models.ShipmentStatuses)})
	}
	return s.repo.ListShipmentsByPartner(ctx, partner.ID, f)
}

// Update applies a partial patch. Tracking number, owner, events and current
// status are not part of ShipmentPatch and stay as they are.
func (s *Service) Update(ctx context.Context, partner *models.Partner, trackingNumber string, patch models.ShipmentPatch) (*models.Shipment, error) {
	if err := requireActive(partner); err != nil {
		return nil, err
	}
	if err := validatePatch(&patch); err != nil {
		return nil, err
	}
	tn := normalizeTN(trackingNumber)
	sh, err := s.repo.UpdateShipment(ctx, tn, partner.ID, patch, s.now().UTC())
	if err != nil {
		return nil, err
	}
	slog.Info("shipment updated", "tracking_number", tn, "partner_id", partner.ID)
	s.cachePublic(ctx, sh)
	return sh, nil
}

func (s *Service) Stats(ctx context.Context, partner *models.Partner, from, to *time.Time) (*models.ShipmentStats, error) {
	if err := requireActive(partner); err != nil {
		return nil, err
	}
	counts, err := s.repo.ShipmentStatusCounts(ctx, partner.ID, from, to)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	rate := 0.0
	if total > 0 {
		rate = round2(float64(counts[models.StatusDelivered]) / float64(total) * 100)
	}
	return &models.ShipmentStats{
		TotalShipments:  total,
		StatusBreakdown: counts,
		DeliveryRate:    rate,
		Period:          models.NewPeriod(from, to),
	}, nil
}

func (s *Service) afterMutation(ctx context.Context, sh *models.Shipment, ev models.TrackingEvent) {
	s.cachePublic(ctx, sh)
	if s.notifier != nil {
		s.notifier.FanOut(ctx, sh, ev.EventType)
	}
	s.publish(ctx, sh, ev)
}

func (s *Service) publish(ctx context.Context, sh *models.Shipment, ev models.TrackingEvent) {
	if s.publisher == nil {
		return
	}
	msg := messages.ShipmentEventAppended{
		ShipmentID:     sh.ID,
		TrackingNumber: sh.TrackingNumber,
		PartnerID:      sh.PartnerID,
		CurrentStatus:  sh.CurrentStatus,
		Event:          ev,
		OccurredAt:     ev.CreatedAt,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal shipment event", "err", err)
		return
	}
	if err := s.publisher.Publish(ctx, s.topic, []byte(sh.TrackingNumber), b); err != nil {
		slog.Warn("publish shipment event failed", "tracking_number", sh.TrackingNumber, "err", err)
	}
}

// cachePublic stores the public view versioned by UpdatedAt, so a reader
// holding a pre-append snapshot cannot overwrite what an append wrote.
// Deactivated shipments are stored as an empty tombstone.
func (s *Service) cachePublic(ctx context.Context, sh *models.Shipment) {
	if !s.cacheEnabled() {
		return
	}
	var b []byte
	if sh.IsActive {
		var err error
		if b, err = json.Marshal(sh.Public()); err != nil {
			slog.Error("marshal public shipment", "tracking_number", sh.TrackingNumber, "err", err)
			return
		}
	}
	if _, err := s.cache.SetIfNewer(ctx, publicKey(sh.TrackingNumber), sh.UpdatedAt.UnixMicro(), b, s.publicTTL); err != nil {
		slog.Warn("cache write failed", "tracking_number", sh.TrackingNumber, "err", err)
	}
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.publicTTL > 0
}

func requireActive(p *models.Partner) error {
	if p == nil {
		return apperr.Auth("Partner authentication required")
	}
	if !p.IsActive {
		return apperr.Forbidden("Partner account is deactivated")
	}
	return nil
}

// NewTrackingNumber returns "PT" + unix millis + 4 chars of [0-9A-Z].
func NewTrackingNumber(now time.Time) (string, error) {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	var sb strings.Builder
	sb.WriteString("PT")
	sb.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	base := big.NewInt(int64(len(alphabet)))
	for i := 0; i < 4; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", errors.Wrap(err, "tracking number suffix")
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return sb.String(), nil
}

func normalizeTN(tn string) string {
	return strings.ToUpper(strings.TrimSpace(tn))
}

func publicKey(tn string) string {
	return fmt.Sprintf("shipment:%s:public", tn)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
