package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/broker/messages"
	"github.com/BearBump/ParcelTrack/internal/integrations/channel"
	"github.com/BearBump/ParcelTrack/internal/integrations/channel/fake"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/BearBump/ParcelTrack/internal/storage/memparcel"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *memparcel.Storage
	email   *fake.Sender
	sms     *fake.Sender
	webhook *fake.Sender
	d       *Dispatcher
	now     time.Time
	partner *models.Partner
	other   *models.Partner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memparcel.New(),
		email:   fake.New(),
		sms:     fake.New(),
		webhook: fake.New(),
		now:     time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.d = New(f.store, f.store, channel.Senders{
		models.NotificationEmail:   f.email,
		models.NotificationSMS:     f.sms,
		models.NotificationWebhook: f.webhook,
	})
	f.d.now = func() time.Time { return f.now }

	ctx := context.Background()
	f.partner = &models.Partner{ID: "p1", CompanyName: "Acme", ContactEmail: "p1@x.io", APIKey: "pk_1", IsActive: true, WebhookURL: "https://hooks.acme.io/parcel"}
	f.other = &models.Partner{ID: "p2", CompanyName: "Other", ContactEmail: "p2@x.io", APIKey: "pk_2", IsActive: true}
	require.NoError(t, f.store.CreatePartner(ctx, f.partner))
	require.NoError(t, f.store.CreatePartner(ctx, f.other))
	return f
}

func (f *fixture) shipment(t *testing.T, tn, email, phone string) *models.Shipment {
	t.Helper()
	sh := &models.Shipment{
		ID: "id-" + tn, TrackingNumber: tn, PartnerID: "p1",
		Recipient:     models.Party{Name: "Jane", Email: email, Phone: phone},
		CurrentStatus: models.StatusPending, IsActive: true,
		Events:    []models.TrackingEvent{{EventID: "e0", EventType: models.EventShipmentCreated, Status: models.StatusPending}},
		CreatedAt: f.now, UpdatedAt: f.now,
	}
	require.NoError(t, f.store.CreateShipment(context.Background(), sh))
	return sh
}

func TestFanOut_OneRecordPerChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	both := f.shipment(t, "PT1BOTH", "jane@x.io", "+15550100")
	f.d.FanOut(ctx, both, models.EventDelivered)

	hist, err := f.d.History(ctx, both.TrackingNumber)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	types := map[models.NotificationType]*models.Notification{}
	for _, n := range hist {
		types[n.Type] = n
		require.Equal(t, models.NotificationSent, n.Status)
		require.NotNil(t, n.SentAt)
		require.Equal(t, "p1", n.PartnerID)
	}
	require.Equal(t, "Package Delivered - Tracking #PT1BOTH", types[models.NotificationEmail].Subject)
	require.Equal(t, "Package PT1BOTH delivered", types[models.NotificationSMS].Message)
	require.Len(t, f.email.Sent(), 1)
	require.Len(t, f.sms.Sent(), 1)

	none := f.shipment(t, "PT1NONE", "", "")
	f.d.FanOut(ctx, none, models.EventDelivered)
	hist, err = f.d.History(ctx, none.TrackingNumber)
	require.NoError(t, err)
	require.Empty(t, hist)
}

func TestFanOut_UnknownEventUsesFallback(t *testing.T) {
	f := newFixture(t)
	sh := f.shipment(t, "PT1LOST", "jane@x.io", "+1555")
	f.d.FanOut(context.Background(), sh, models.EventLost)

	hist, _ := f.d.History(context.Background(), sh.TrackingNumber)
	require.Len(t, hist, 2)
	for _, n := range hist {
		switch n.Type {
		case models.NotificationEmail:
			require.Equal(t, "Shipment Update - Tracking #PT1LOST", n.Subject)
			require.Equal(t, "Your shipment status has been updated.", n.Message)
		case models.NotificationSMS:
			require.Equal(t, "Update for package PT1LOST", n.Message)
		}
	}
}

func TestFanOut_InTransitMentionsCity(t *testing.T) {
	f := newFixture(t)
	sh := f.shipment(t, "PT1CITY", "jane@x.io", "")
	sh.Events = append(sh.Events, models.TrackingEvent{EventType: models.EventInTransit, Location: &models.Location{City: "Denver"}})
	f.d.FanOut(context.Background(), sh, models.EventInTransit)

	hist, _ := f.d.History(context.Background(), sh.TrackingNumber)
	require.Len(t, hist, 1)
	require.Equal(t, "Your package is in transit and currently in Denver.", hist[0].Message)
}

func TestDispatch_FailureSchedulesBackoffUntilTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.email.SetDown(true)
	sh := f.shipment(t, "PT1FAIL", "jane@x.io", "")

	f.d.FanOut(ctx, sh, models.EventInTransit)

	hist, _ := f.d.History(ctx, sh.TrackingNumber)
	require.Len(t, hist, 1)
	n := hist[0]
	require.Equal(t, models.NotificationFailed, n.Status)
	require.Equal(t, 1, n.RetryCount)
	require.Equal(t, "channel unavailable", n.FailureReason)
	require.Equal(t, f.now.Add(2*time.Minute), *n.NextAttemptAt)

	// second failure: 4 minutes
	f.d.Redispatch(ctx, n)
	n, err := f.store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n.RetryCount)
	require.Equal(t, f.now.Add(4*time.Minute), *n.NextAttemptAt)

	// third failure is terminal
	f.d.Redispatch(ctx, n)
	stored, err := f.store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	require.Equal(t, models.NotificationFailed, stored.Status)
	require.Equal(t, 3, stored.RetryCount)
	require.Nil(t, stored.NextAttemptAt)

	due, err := f.store.ClaimDueNotifications(ctx, f.now.Add(24*time.Hour), 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, due)
	require.Equal(t, 3, f.email.Attempts())
}

func TestRedispatch_SkipsRecordsChangedAfterClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failOnce := func(tn string) *models.Notification {
		f.email.SetDown(true)
		f.d.FanOut(ctx, f.shipment(t, tn, "jane@x.io", ""), models.EventInTransit)
		f.email.SetDown(false)
		claimed, err := f.store.ClaimDueNotifications(ctx, f.now.Add(time.Hour), 10, time.Minute)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		return claimed[0]
	}

	// canceled between claim and dispatch
	canceled := failOnce("PT1CANCEL")
	_, err := f.d.Cancel(ctx, f.partner, canceled.ID)
	require.NoError(t, err)
	f.d.Redispatch(ctx, canceled)
	require.Equal(t, 1, f.email.Attempts())
	stored, err := f.store.GetNotification(ctx, canceled.ID)
	require.NoError(t, err)
	require.Equal(t, models.NotificationFailed, stored.Status)
	require.Nil(t, stored.NextAttemptAt)

	// retried by hand between claim and dispatch
	manual := failOnce("PT1MANUAL")
	_, err = f.d.ManualRetry(ctx, f.partner, manual.ID)
	require.NoError(t, err)
	f.d.Redispatch(ctx, manual)
	require.Len(t, f.email.Sent(), 1)
	stored, err = f.store.GetNotification(ctx, manual.ID)
	require.NoError(t, err)
	require.Equal(t, models.NotificationSent, stored.Status)
}

func TestDispatch_UnknownChannelFails(t *testing.T) {
	f := newFixture(t)
	n := &models.Notification{ID: "n-push", TrackingNumber: "PT1", Type: models.NotificationPush, Status: models.NotificationPending}
	require.NoError(t, f.store.CreateNotification(context.Background(), n))

	f.d.Dispatch(context.Background(), n)
	require.Equal(t, models.NotificationFailed, n.Status)
	require.Contains(t, n.FailureReason, "Unknown notification type")
}

func TestManualRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.email.SetDown(true)
	sh := f.shipment(t, "PT1RETRY", "jane@x.io", "")
	f.d.FanOut(ctx, sh, models.EventDelivered)
	hist, _ := f.d.History(ctx, sh.TrackingNumber)
	id := hist[0].ID

	_, err := f.d.ManualRetry(ctx, f.other, id)
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	f.email.SetDown(false)
	n, err := f.d.ManualRetry(ctx, f.partner, id)
	require.NoError(t, err)
	require.Equal(t, models.NotificationSent, n.Status)
	require.Empty(t, n.FailureReason)
	require.Nil(t, n.NextAttemptAt)

	_, err = f.d.ManualRetry(ctx, f.partner, id)
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.d.ManualRetry(ctx, f.partner, "missing")
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCancel_ClearsSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.email.SetDown(true)
	sh := f.shipment(t, "PT1CANCEL", "jane@x.io", "")
	f.d.FanOut(ctx, sh, models.EventDelivered)
	hist, _ := f.d.History(ctx, sh.TrackingNumber)

	n, err := f.d.Cancel(ctx, f.partner, hist[0].ID)
	require.NoError(t, err)
	require.Nil(t, n.NextAttemptAt)

	due, _ := f.store.ClaimDueNotifications(ctx, f.now.Add(time.Hour), 10, time.Minute)
	require.Empty(t, due)

	_, err = f.d.Cancel(ctx, f.partner, hist[0].ID)
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.shipment(t, "PT1SUB", "", "")

	n, err := f.d.Subscribe(ctx, SubscribeInput{TrackingNumber: "pt1sub", Phone: "+1555"})
	require.NoError(t, err)
	require.Equal(t, models.NotificationPending, n.Status)
	require.Equal(t, models.NotificationSMS, n.Type)
	require.Equal(t, models.NotificationEventSubscription, n.Event)
	require.Equal(t, "Subscribed to notifications for tracking number: PT1SUB", n.Message)
	require.Zero(t, f.sms.Attempts())

	_, err = f.d.Subscribe(ctx, SubscribeInput{TrackingNumber: "PT1MISSING", Email: "a@x.io"})
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.d.Subscribe(ctx, SubscribeInput{TrackingNumber: "PT1SUB"})
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSendManual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.shipment(t, "PT1MAN", "", "")

	n, err := f.d.SendManual(ctx, f.partner, ManualInput{
		TrackingNumber: "PT1MAN", Type: models.NotificationEmail,
		Recipient: models.NotificationRecipient{Email: "vip@x.io"}, Subject: "Heads up", Message: "Call us",
	})
	require.NoError(t, err)
	require.Equal(t, models.NotificationSent, n.Status)
	require.Equal(t, models.NotificationEventManual, n.Event)
	require.Equal(t, "vip@x.io", f.email.Sent()[0].Recipient.Email)

	_, err = f.d.SendManual(ctx, f.other, ManualInput{
		TrackingNumber: "PT1MAN", Type: models.NotificationEmail,
		Recipient: models.NotificationRecipient{Email: "vip@x.io"}, Message: "x",
	})
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.d.SendManual(ctx, f.partner, ManualInput{TrackingNumber: "PT1MAN", Type: "fax", Message: ""})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.d.SendManual(ctx, f.partner, ManualInput{TrackingNumber: "PT1MAN", Type: models.NotificationSMS, Message: "x"})
	require.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestWebhookFanOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msg := messages.ShipmentEventAppended{
		ShipmentID: "s1", TrackingNumber: "PT1HOOK", PartnerID: "p1", CurrentStatus: models.StatusDelivered,
		Event: models.TrackingEvent{EventID: "e9", EventType: models.EventDelivered, Status: models.StatusDelivered},
	}
	require.NoError(t, f.d.WebhookFanOut(ctx, msg))

	sent := f.webhook.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, "https://hooks.acme.io/parcel", sent[0].Recipient.WebhookURL)
	require.Equal(t, "e9", sent[0].Metadata["eventId"])

	// partner without webhook: nothing
	msg.PartnerID = "p2"
	require.NoError(t, f.d.WebhookFanOut(ctx, msg))
	msg.PartnerID = "gone"
	require.NoError(t, f.d.WebhookFanOut(ctx, msg))
	require.Len(t, f.webhook.Sent(), 1)
}

func TestStatsAndLists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ok := f.shipment(t, "PT1OK", "jane@x.io", "+1555")
	f.d.FanOut(ctx, ok, models.EventDelivered)
	f.sms.SetDown(true)
	bad := f.shipment(t, "PT1BAD", "", "+1555")
	f.d.FanOut(ctx, bad, models.EventDelivered)

	st, err := f.d.Stats(ctx, f.partner, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 3, st.Total)
	require.Equal(t, 2, st.StatusBreakdown[models.NotificationSent])
	require.Equal(t, 1, st.StatusBreakdown[models.NotificationFailed])
	require.Equal(t, 2, st.TypeBreakdown[models.NotificationSMS])
	require.Equal(t, 66.67, st.SuccessRate)

	failed, err := f.d.ListFailed(ctx, f.partner, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, failed.TotalDocs)
	require.Equal(t, "PT1BAD", failed.Docs[0].TrackingNumber)

	other, err := f.d.ListFailed(ctx, f.other, 1, 10)
	require.NoError(t, err)
	require.Zero(t, other.TotalDocs)

	sms := models.NotificationSMS
	all, err := f.d.ListAll(ctx, models.NotificationFilter{Type: &sms})
	require.NoError(t, err)
	require.Equal(t, 2, all.TotalDocs)
	require.Equal(t, 20, all.Limit)

	mine, err := f.d.HistoryFor(ctx, "pt1ok", "JANE@x.io")
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestTemplates(t *testing.T) {
	ts := Templates()
	require.Len(t, ts, 8)
	require.Equal(t, "shipment_created", ts[0].Event)
	require.Equal(t, "Shipment Created - Tracking #{trackingNumber}", ts[0].Subject)
	require.Equal(t, "Shipment {trackingNumber} created", ts[0].SMS)
}

func TestBackoff(t *testing.T) {
	require.Equal(t, 2*time.Minute, Backoff(1))
	require.Equal(t, 4*time.Minute, Backoff(2))
	require.Equal(t, 8*time.Minute, Backoff(3))
}
