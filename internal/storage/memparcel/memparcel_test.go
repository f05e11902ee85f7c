package memparcel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/stretchr/testify/require"
)

func seedPartner(t *testing.T, st *Storage, id string) *models.Partner {
	t.Helper()
	p := &models.Partner{
		ID: id, CompanyName: "Co " + id, ContactEmail: id + "@Example.com",
		PartnerType: models.PartnerCourier, APIKey: "pk_" + id, IsActive: true,
		RateLimit: models.DefaultRateLimit(), CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreatePartner(context.Background(), p))
	return p
}

func seedShipment(t *testing.T, st *Storage, tn, partnerID, email string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, st.CreateShipment(context.Background(), &models.Shipment{
		ID: "id-" + tn, TrackingNumber: tn, PartnerID: partnerID,
		Recipient:     models.Party{Name: "R", Email: email},
		CurrentStatus: models.StatusPending, IsActive: true,
		Events:    []models.TrackingEvent{{EventID: "e0", EventType: models.EventShipmentCreated, Status: models.StatusPending}},
		CreatedAt: createdAt, UpdatedAt: createdAt,
	}))
}

func TestIdentity_UniqueEmailsAndCredentials(t *testing.T) {
	st := New()
	ctx := context.Background()

	require.NoError(t, st.CreateUser(ctx, &models.User{ID: "u1", Email: "Jane@Example.com"}))
	err := st.CreateUser(ctx, &models.User{ID: "u2", Email: "jane@example.com"})
	require.True(t, apperr.Is(err, apperr.KindConflict))

	u, err := st.GetUserByEmail(ctx, "JANE@example.com")
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", u.Email)

	p := seedPartner(t, st, "p1")
	err = st.CreatePartner(ctx, &models.Partner{ID: "p2", ContactEmail: "P1@example.com", APIKey: "pk_other"})
	require.True(t, apperr.Is(err, apperr.KindConflict))

	require.NoError(t, st.ReplacePartnerCredentials(ctx, p.ID, "pk_new", "hash", time.Now()))
	_, err = st.GetPartnerByAPIKey(ctx, "pk_p1")
	require.True(t, apperr.Is(err, apperr.KindNotFound))
	got, err := st.GetPartnerByAPIKey(ctx, "pk_new")
	require.NoError(t, err)
	require.Equal(t, "hash", got.APISecretHash)

	// profile update cannot touch credentials
	got.APIKey = "pk_hijack"
	got.CompanyName = "Renamed"
	require.NoError(t, st.UpdatePartner(ctx, got))
	again, _ := st.GetPartnerByID(ctx, p.ID)
	require.Equal(t, "pk_new", again.APIKey)
	require.Equal(t, "Renamed", again.CompanyName)
}

func TestShipments_OwnershipAndVisibility(t *testing.T) {
	st := New()
	ctx := context.Background()
	seedPartner(t, st, "p1")
	seedPartner(t, st, "p2")
	seedShipment(t, st, "PT1", "p1", "r@x.io", time.Now().UTC())

	err := st.CreateShipment(ctx, &models.Shipment{TrackingNumber: "PT1", PartnerID: "p1"})
	require.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = st.AppendShipmentEvent(ctx, "PT1", "p2", models.TrackingEvent{Status: models.StatusInTransit})
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	sh, err := st.AppendShipmentEvent(ctx, "PT1", "p1", models.TrackingEvent{EventID: "e1", Status: models.StatusInTransit})
	require.NoError(t, err)
	require.Equal(t, models.StatusInTransit, sh.CurrentStatus)
	require.Len(t, sh.Events, 2)
	require.Equal(t, "Co p1", sh.Partner.CompanyName)

	// returned value is a copy
	sh.Events[0].Description = "mutated"
	fresh, _ := st.GetShipment(ctx, "PT1")
	require.Empty(t, fresh.Events[0].Description)

	off := false
	_, err = st.UpdateShipment(ctx, "PT1", "p1", models.ShipmentPatch{IsActive: &off}, time.Now())
	require.NoError(t, err)
	_, err = st.UpdateShipment(ctx, "PT1", "p1", models.ShipmentPatch{IsActive: &off}, time.Now())
	require.True(t, apperr.Is(err, apperr.KindNotFound))

	list, err := st.ListShipmentsByRecipientEmail(ctx, "R@X.IO")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestShipments_ListFilterAndStats(t *testing.T) {
	st := New()
	ctx := context.Background()
	seedPartner(t, st, "p1")
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	seedShipment(t, st, "PT1", "p1", "a@x.io", base)
	seedShipment(t, st, "PT2", "p1", "a@x.io", base.Add(24*time.Hour))
	seedShipment(t, st, "PT3", "p1", "b@x.io", base.Add(48*time.Hour))
	_, err := st.AppendShipmentEvent(ctx, "PT3", "p1", models.TrackingEvent{EventType: models.EventDelivered, Status: models.StatusDelivered})
	require.NoError(t, err)

	page, err := st.ListShipmentsByPartner(ctx, "p1", models.ShipmentFilter{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, page.TotalDocs)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, "PT3", page.Docs[0].TrackingNumber)
	require.Equal(t, "PT2", page.Docs[1].TrackingNumber)

	delivered := models.StatusDelivered
	page, _ = st.ListShipmentsByPartner(ctx, "p1", models.ShipmentFilter{Status: &delivered})
	require.Len(t, page.Docs, 1)

	from, to := base, base.Add(24*time.Hour)
	page, _ = st.ListShipmentsByPartner(ctx, "p1", models.ShipmentFilter{From: &from, To: &to})
	require.Equal(t, 2, page.TotalDocs)

	byEmail, _ := st.ListShipmentsByRecipientEmail(ctx, "a@x.io")
	require.Len(t, byEmail, 2)
	require.Equal(t, "PT2", byEmail[0].TrackingNumber)

	counts, err := st.ShipmentStatusCounts(ctx, "p1", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, counts[models.StatusPending])
	require.Equal(t, 1, counts[models.StatusDelivered])
}

func TestShipments_ConcurrentAppendsAreAtomic(t *testing.T) {
	st := New()
	ctx := context.Background()
	seedPartner(t, st, "p1")
	seedShipment(t, st, "PT1", "p1", "", time.Now().UTC())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = st.AppendShipmentEvent(ctx, "PT1", "p1", models.TrackingEvent{Status: models.StatusInTransit})
		}()
	}
	wg.Wait()

	sh, err := st.GetShipment(ctx, "PT1")
	require.NoError(t, err)
	require.Len(t, sh.Events, 51)
	last, _ := sh.LatestEvent()
	require.Equal(t, last.Status, sh.CurrentStatus)
}

func TestShipments_AppendedEventIsCopied(t *testing.T) {
	st := New()
	ctx := context.Background()
	seedPartner(t, st, "p1")
	seedShipment(t, st, "PT1", "p1", "", time.Now().UTC())

	ev := models.TrackingEvent{
		EventID: "e1", EventType: models.EventInTransit, Status: models.StatusInTransit,
		Location: &models.Location{City: "Austin", Coordinates: &models.Coordinates{Latitude: 30.2}},
		Metadata: map[string]string{"hub": "AUS-1"},
	}
	_, err := st.AppendShipmentEvent(ctx, "PT1", "p1", ev)
	require.NoError(t, err)

	ev.Location.City = "Dallas"
	ev.Location.Coordinates.Latitude = 0
	ev.Metadata["hub"] = "DAL-9"

	sh, err := st.GetShipment(ctx, "PT1")
	require.NoError(t, err)
	last, _ := sh.LatestEvent()
	require.Equal(t, "Austin", last.Location.City)
	require.Equal(t, 30.2, last.Location.Coordinates.Latitude)
	require.Equal(t, "AUS-1", last.Metadata["hub"])
}

func TestNotifications_ClaimDueWithLease(t *testing.T) {
	st := New()
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	for _, n := range []*models.Notification{
		{ID: "due", Status: models.NotificationFailed, NextAttemptAt: &past, CreatedAt: now},
		{ID: "later", Status: models.NotificationFailed, NextAttemptAt: &future, CreatedAt: now},
		{ID: "terminal", Status: models.NotificationFailed, CreatedAt: now},
		{ID: "sent", Status: models.NotificationSent, NextAttemptAt: &past, CreatedAt: now},
	} {
		require.NoError(t, st.CreateNotification(ctx, n))
	}

	got, err := st.ClaimDueNotifications(ctx, now, 10, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "due", got[0].ID)

	again, err := st.ClaimDueNotifications(ctx, now, 10, 2*time.Minute)
	require.NoError(t, err)
	require.Empty(t, again)

	after, err := st.ClaimDueNotifications(ctx, now.Add(3*time.Minute), 10, 2*time.Minute)
	require.NoError(t, err)
	require.Len(t, after, 1)
}

func TestNotifications_UpdateListCounts(t *testing.T) {
	st := New()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, st.CreateNotification(ctx, &models.Notification{ID: "n1", PartnerID: "p1", TrackingNumber: "PT1", Type: models.NotificationEmail, Status: models.NotificationPending, CreatedAt: now}))
	require.NoError(t, st.CreateNotification(ctx, &models.Notification{ID: "n2", PartnerID: "p1", TrackingNumber: "PT1", Type: models.NotificationSMS, Status: models.NotificationPending, CreatedAt: now}))
	require.NoError(t, st.CreateNotification(ctx, &models.Notification{ID: "n3", PartnerID: "p2", TrackingNumber: "PT9", Type: models.NotificationEmail, Status: models.NotificationPending, CreatedAt: now}))

	n, _ := st.GetNotification(ctx, "n1")
	sent := now
	n.Status = models.NotificationSent
	n.SentAt = &sent
	n.TrackingNumber = "ignored"
	require.NoError(t, st.UpdateNotification(ctx, n))

	got, _ := st.GetNotification(ctx, "n1")
	require.Equal(t, models.NotificationSent, got.Status)
	require.Equal(t, "PT1", got.TrackingNumber)

	page, err := st.ListNotifications(ctx, models.NotificationFilter{TrackingNumber: "PT1"})
	require.NoError(t, err)
	require.Equal(t, 2, page.TotalDocs)
	require.Equal(t, "n2", page.Docs[0].ID)

	byStatus, byType, err := st.NotificationCounts(ctx, models.NotificationFilter{PartnerID: "p1"})
	require.NoError(t, err)
	require.Equal(t, 1, byStatus[models.NotificationSent])
	require.Equal(t, 1, byStatus[models.NotificationPending])
	require.Equal(t, 1, byType[models.NotificationSMS])

	_, err = st.GetNotification(ctx, "missing")
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}
