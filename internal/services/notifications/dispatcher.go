package notifications

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/broker/messages"
	"github.com/BearBump/ParcelTrack/internal/integrations/channel"
	"github.com/BearBump/ParcelTrack/internal/metrics"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Repository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	UpdateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, f models.NotificationFilter) (models.Page[*models.Notification], error)
	NotificationCounts(ctx context.Context, f models.NotificationFilter) (map[models.NotificationStatus]int, map[models.NotificationType]int, error)
}

type ShipmentLookup interface {
	GetShipment(ctx context.Context, trackingNumber string) (*models.Shipment, error)
	GetPartnerByID(ctx context.Context, id string) (*models.Partner, error)
}

type Dispatcher struct {
	repo      Repository
	shipments ShipmentLookup
	senders   channel.Senders
	metrics   *metrics.Metrics

	now   func() time.Time
	newID func() string
}

func New(repo Repository, shipments ShipmentLookup, senders channel.Senders) *Dispatcher {
	if senders == nil {
		senders = channel.Senders{}
	}
	return &Dispatcher{
		repo:      repo,
		shipments: shipments,
		senders:   senders,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (d *Dispatcher) WithMetrics(m *metrics.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// FanOut creates one email and one sms record when the recipient has the
// matching contact and dispatches each. Failures are logged and recorded on
// the notification, never returned.
func (d *Dispatcher) FanOut(ctx context.Context, sh *models.Shipment, eventType models.EventType) {
	var batch []*models.Notification
	if sh.Recipient.Email != "" {
		batch = append(batch, d.newNotification(sh, models.NotificationEmail, string(eventType),
			models.NotificationRecipient{Email: sh.Recipient.Email},
			emailSubject(eventType, sh.TrackingNumber),
			emailMessage(eventType, sh)))
	}
	if sh.Recipient.Phone != "" {
		batch = append(batch, d.newNotification(sh, models.NotificationSMS, string(eventType),
			models.NotificationRecipient{Phone: sh.Recipient.Phone},
			"",
			smsMessage(eventType, sh.TrackingNumber)))
	}

	for _, n := range batch {
		if err := d.repo.CreateNotification(ctx, n); err != nil {
			slog.Error("create notification failed", "tracking_number", sh.TrackingNumber, "type", n.Type, "err", err)
			continue
		}
		d.Dispatch(ctx, n)
	}
	if len(batch) > 0 {
		slog.Info("notifications dispatched", "tracking_number", sh.TrackingNumber, "event", eventType, "count", len(batch))
	}
}

// Dispatch routes n to its channel and persists the outcome on n.
func (d *Dispatcher) Dispatch(ctx context.Context, n *models.Notification) {
	sender, ok := d.senders[n.Type]
	if !ok {
		d.HandleFailure(ctx, n, errors.Errorf("Unknown notification type: %s", n.Type))
		return
	}
	if err := sender.Send(ctx, n); err != nil {
		d.HandleFailure(ctx, n, err)
		return
	}

	now := d.now().UTC()
	n.Status = models.NotificationSent
	n.SentAt = &now
	n.FailureReason = ""
	n.NextAttemptAt = nil
	n.UpdatedAt = now
	d.metrics.NotificationDispatched(string(n.Type), "sent")
	if err := d.repo.UpdateNotification(ctx, n); err != nil {
		slog.Error("persist sent notification failed", "notification_id", n.ID, "err", err)
	}
}

// HandleFailure marks n failed and schedules the next attempt
// 2^retryCount minutes out while retryCount < MaxNotificationRetries.
// The schedule lives on the record; the retry worker picks it up.
func (d *Dispatcher) HandleFailure(ctx context.Context, n *models.Notification, cause error) {
	now := d.now().UTC()
	n.Status = models.NotificationFailed
	n.FailureReason = cause.Error()
	n.RetryCount++
	n.NextAttemptAt = nil
	if n.RetryCount < models.MaxNotificationRetries {
		next := now.Add(Backoff(n.RetryCount))
		n.NextAttemptAt = &next
		d.metrics.RetryScheduled(string(n.Type))
	}
	n.UpdatedAt = now
	d.metrics.NotificationDispatched(string(n.Type), "failed")

	if err := d.repo.UpdateNotification(ctx, n); err != nil {
		slog.Error("persist failed notification failed", "notification_id", n.ID, "err", err)
	}
	slog.Warn("notification failed",
		"notification_id", n.ID,
		"tracking_number", n.TrackingNumber,
		"type", n.Type,
		"retry_count", n.RetryCount,
		"err", cause,
	)
}

func Backoff(retryCount int) time.Duration {
	return time.Duration(math.Pow(2, float64(retryCount))) * time.Minute
}

// Redispatch is the retry worker's entry point for a claimed record. The
// record is read again first: a Cancel or ManualRetry that landed after the
// claim wins.
func (d *Dispatcher) Redispatch(ctx context.Context, claimed *models.Notification) {
	n, err := d.repo.GetNotification(ctx, claimed.ID)
	if err != nil {
		slog.Error("reload claimed notification failed", "notification_id", claimed.ID, "err", err)
		return
	}
	if n.Status != models.NotificationFailed || n.NextAttemptAt == nil {
		slog.Info("claimed notification changed, skipping", "notification_id", n.ID, "status", n.Status)
		return
	}
	d.Dispatch(ctx, n)
}

func (d *Dispatcher) ManualRetry(ctx context.Context, partner *models.Partner, id string) (*models.Notification, error) {
	n, err := d.owned(ctx, partner, id)
	if err != nil {
		return nil, err
	}
	if n.Status != models.NotificationFailed {
		return nil, apperr.Validation("Only failed notifications can be retried")
	}

	n.Status = models.NotificationPending
	n.FailureReason = ""
	n.NextAttemptAt = nil
	n.UpdatedAt = d.now().UTC()
	if err := d.repo.UpdateNotification(ctx, n); err != nil {
		return nil, err
	}
	slog.Info("notification retry initiated", "notification_id", n.ID)
	d.Dispatch(ctx, n)
	return n, nil
}

// Cancel drops the pending retry schedule of a failed notification.
func (d *Dispatcher) Cancel(ctx context.Context, partner *models.Partner, id string) (*models.Notification, error) {
	n, err := d.owned(ctx, partner, id)
	if err != nil {
		return nil, err
	}
	if n.Status != models.NotificationFailed || n.NextAttemptAt == nil {
		return nil, apperr.Validation("Notification has no scheduled retry")
	}
	n.NextAttemptAt = nil
	n.UpdatedAt = d.now().UTC()
	if err := d.repo.UpdateNotification(ctx, n); err != nil {
		return nil, err
	}
	slog.Info("notification retry canceled", "notification_id", n.ID)
	return n, nil
}

type SubscribeInput struct {
	TrackingNumber string
	Email          string
	Phone          string
}

// Subscribe records interest in a shipment. Nothing is sent.
func (d *Dispatcher) Subscribe(ctx context.Context, in SubscribeInput) (*models.Notification, error) {
	tn := strings.ToUpper(strings.TrimSpace(in.TrackingNumber))
	if tn == "" {
		return nil, apperr.Validation("", apperr.FieldError{Field: "trackingNumber", Message: "trackingNumber is required"})
	}
	if in.Email == "" && in.Phone == "" {
		return nil, apperr.Validation("", apperr.FieldError{Field: "email", Message: "email or phone is required"})
	}
	sh, err := d.activeShipment(ctx, tn)
	if err != nil {
		return nil, err
	}

	typ := models.NotificationEmail
	if in.Email == "" {
		typ = models.NotificationSMS
	}
	n := d.newNotification(sh, typ, models.NotificationEventSubscription,
		models.NotificationRecipient{Email: in.Email, Phone: in.Phone},
		"",
		"Subscribed to notifications for tracking number: "+tn)
	if err := d.repo.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	slog.Info("subscription created", "tracking_number", tn)
	return n, nil
}

type ManualInput struct {
	TrackingNumber string
	Type           models.NotificationType
	Recipient      models.NotificationRecipient
	Subject        string
	Message        string
}

func (d *Dispatcher) SendManual(ctx context.Context, partner *models.Partner, in ManualInput) (*models.Notification, error) {
	if partner == nil {
		return nil, apperr.Auth("Partner authentication required")
	}
	var fields []apperr.FieldError
	if !in.Type.Valid() {
		fields = append(fields, apperr.FieldError{Field: "type", Message: "type must be one of email, sms, push, webhook"})
	}
	if strings.TrimSpace(in.Message) == "" {
		fields = append(fields, apperr.FieldError{Field: "message", Message: "message is required"})
	}
	tn := strings.ToUpper(strings.TrimSpace(in.TrackingNumber))
	if tn == "" {
		fields = append(fields, apperr.FieldError{Field: "trackingNumber", Message: "trackingNumber is required"})
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("", fields...)
	}

	sh, err := d.activeShipment(ctx, tn)
	if err != nil {
		return nil, err
	}
	if sh.PartnerID != partner.ID {
		return nil, apperr.NotFound("Shipment")
	}

	n := d.newNotification(sh, in.Type, models.NotificationEventManual, in.Recipient, in.Subject, in.Message)
	if n.Address() == "" {
		return nil, apperr.Validation("", apperr.FieldError{Field: "recipient", Message: "recipient has no address for type " + string(in.Type)})
	}
	if err := d.repo.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	d.Dispatch(ctx, n)
	slog.Info("manual notification sent", "tracking_number", tn, "status", n.Status)
	return n, nil
}

// WebhookFanOut posts a shipment event to the owning partner's webhook.
func (d *Dispatcher) WebhookFanOut(ctx context.Context, msg messages.ShipmentEventAppended) error {
	if msg.PartnerID == "" {
		return nil
	}
	p, err := d.shipments.GetPartnerByID(ctx, msg.PartnerID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}
	if p.WebhookURL == "" || !p.IsActive {
		return nil
	}

	sh := &models.Shipment{
		ID:             msg.ShipmentID,
		TrackingNumber: msg.TrackingNumber,
		PartnerID:      msg.PartnerID,
		CurrentStatus:  msg.CurrentStatus,
		Events:         []models.TrackingEvent{msg.Event},
	}
	n := d.newNotification(sh, models.NotificationWebhook, string(msg.Event.EventType),
		models.NotificationRecipient{WebhookURL: p.WebhookURL},
		emailSubject(msg.Event.EventType, msg.TrackingNumber),
		emailMessage(msg.Event.EventType, sh))
	n.Metadata = map[string]string{
		"eventId":       msg.Event.EventID,
		"currentStatus": string(msg.CurrentStatus),
	}
	if err := d.repo.CreateNotification(ctx, n); err != nil {
		return err
	}
	d.Dispatch(ctx, n)
	return nil
}

// History is newest-first.
func (d *Dispatcher) History(ctx context.Context, trackingNumber string) ([]*models.Notification, error) {
	tn := strings.ToUpper(strings.TrimSpace(trackingNumber))
	if tn == "" {
		return nil, apperr.Validation("Tracking number is required")
	}
	out := []*models.Notification{}
	for page := 1; ; page++ {
		p, err := d.repo.ListNotifications(ctx, models.NotificationFilter{TrackingNumber: tn, Page: page, Limit: 100})
		if err != nil {
			return nil, err
		}
		out = append(out, p.Docs...)
		if !p.HasNextPage {
			return out, nil
		}
	}
}

// HistoryFor keeps only the records addressed to email.
func (d *Dispatcher) HistoryFor(ctx context.Context, trackingNumber, email string) ([]*models.Notification, error) {
	all, err := d.History(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Notification, 0, len(all))
	for _, n := range all {
		if strings.EqualFold(n.Recipient.Email, email) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (d *Dispatcher) Stats(ctx context.Context, partner *models.Partner, from, to *time.Time) (*models.NotificationStats, error) {
	if partner == nil {
		return nil, apperr.Auth("Partner authentication required")
	}
	byStatus, byType, err := d.repo.NotificationCounts(ctx, models.NotificationFilter{PartnerID: partner.ID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	total := 0
	for _, c := range byStatus {
		total += c
	}
	rate := 0.0
	if total > 0 {
		rate = math.Round(float64(byStatus[models.NotificationSent])/float64(total)*100*100) / 100
	}
	return &models.NotificationStats{
		Total:           total,
		StatusBreakdown: byStatus,
		TypeBreakdown:   byType,
		SuccessRate:     rate,
		Period:          models.NewPeriod(from, to),
	}, nil
}

func (d *Dispatcher) ListFailed(ctx context.Context, partner *models.Partner, page, limit int) (models.Page[*models.Notification], error) {
	if partner == nil {
		return models.Page[*models.Notification]{}, apperr.Auth("Partner authentication required")
	}
	failed := models.NotificationFailed
	return d.repo.ListNotifications(ctx, models.NotificationFilter{PartnerID: partner.ID, Status: &failed, Page: page, Limit: limit})
}

// ListAll is the admin view across partners.
func (d *Dispatcher) ListAll(ctx context.Context, f models.NotificationFilter) (models.Page[*models.Notification], error) {
	if f.Status != nil && !f.Status.Valid() {
		return models.Page[*models.Notification]{}, apperr.Validation("", apperr.FieldError{Field: "status", Message: "status must be one of pending, sent, delivered, failed"})
	}
	if f.Type != nil && !f.Type.Valid() {
		return models.Page[*models.Notification]{}, apperr.Validation("", apperr.FieldError{Field: "type", Message: "type must be one of email, sms, push, webhook"})
	}
	if f.Limit == 0 {
		f.Limit = 20
	}
	return d.repo.ListNotifications(ctx, f)
}

func (d *Dispatcher) owned(ctx context.Context, partner *models.Partner, id string) (*models.Notification, error) {
	if partner == nil {
		return nil, apperr.Auth("Partner authentication required")
	}
	n, err := d.repo.GetNotification(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.PartnerID != partner.ID {
		return nil, apperr.NotFound("Notification")
	}
	return n, nil
}

func (d *Dispatcher) activeShipment(ctx context.Context, tn string) (*models.Shipment, error) {
	sh, err := d.shipments.GetShipment(ctx, tn)
	if err != nil {
		return nil, err
	}
	if !sh.IsActive {
		return nil, apperr.NotFound("Shipment")
	}
	return sh, nil
}

func (d *Dispatcher) newNotification(sh *models.Shipment, typ models.NotificationType, event string,
	to models.NotificationRecipient, subject, message string) *models.Notification {
	now := d.now().UTC()
	return &models.Notification{
		ID:             d.newID(),
		TrackingNumber: sh.TrackingNumber,
		ShipmentID:     sh.ID,
		PartnerID:      sh.PartnerID,
		Type:           typ,
		Event:          event,
		Recipient:      to,
		Subject:        subject,
		Message:        message,
		Status:         models.NotificationPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
