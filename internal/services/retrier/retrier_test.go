package retrier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ParcelTrack/internal/integrations/channel"
	"github.com/BearBump/ParcelTrack/internal/integrations/channel/fake"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/BearBump/ParcelTrack/internal/services/notifications"
	"github.com/BearBump/ParcelTrack/internal/storage/memparcel"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu    sync.Mutex
	calls int
	items []*models.Notification
	err   error
}

func (r *fakeRepo) ClaimDueNotifications(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	items := r.items
	r.items = nil
	return items, r.err
}

func (r *fakeRepo) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *fakeDispatcher) Redispatch(ctx context.Context, n *models.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, n.ID)
}

type fakeRL struct {
	allowed bool
	count   int64
	err     error
}

func (r fakeRL) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error) {
	return r.allowed, r.count, r.err
}

func TestRetrier_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	r := New(repo, &fakeDispatcher{}).WithSettings(5*time.Millisecond, 1, 1, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := r.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, repo.Calls(), 1)
}

func TestRetrier_WithSettings(t *testing.T) {
	r := New(nil, nil).WithSettings(5*time.Second, 7, 9, 11*time.Second)
	require.Equal(t, 5*time.Second, r.pollInterval)
	require.Equal(t, 7, r.batchSize)
	require.Equal(t, 9, r.concurrency)
	require.Equal(t, 11*time.Second, r.lease)

	r.WithSettings(0, 0, 0, 0)
	require.Equal(t, 7, r.batchSize)
}

func TestRetrier_RunOnce_RedispatchesClaimed(t *testing.T) {
	repo := &fakeRepo{items: []*models.Notification{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	d := &fakeDispatcher{}
	r := New(repo, d).WithSettings(0, 0, 2, 0)

	r.RunOnce(context.Background())
	require.ElementsMatch(t, []string{"a", "b", "c"}, d.ids)

	st := r.Stats()
	require.EqualValues(t, 3, st.TotalClaimed)
	require.EqualValues(t, 3, st.TotalProcessed)
	require.EqualValues(t, 0, st.InFlight)
	require.NotNil(t, st.LastCycleAt)
}

func TestRetrier_RunOnce_ClaimError(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	r := New(repo, &fakeDispatcher{})
	r.RunOnce(context.Background())
	require.Equal(t, "db down", r.Stats().LastError)
}

func TestRetrier_RateLimitDefers(t *testing.T) {
	repo := &fakeRepo{items: []*models.Notification{{ID: "a", Type: models.NotificationEmail}}}
	d := &fakeDispatcher{}
	r := New(repo, d).WithRateLimit(fakeRL{allowed: false, count: 61}, 60)

	r.RunOnce(context.Background())
	require.Empty(t, d.ids)
	require.EqualValues(t, 1, r.Stats().TotalDeferred)

	// лимитер упал: повтор всё равно уходит
	repo.items = []*models.Notification{{ID: "b", Type: models.NotificationEmail}}
	r.WithRateLimit(fakeRL{err: errors.New("redis down")}, 60)
	r.RunOnce(context.Background())
	require.Equal(t, []string{"b"}, d.ids)
}

func TestRetrier_Trigger(t *testing.T) {
	r := New(&fakeRepo{}, &fakeDispatcher{})
	r.Trigger()
	r.Trigger()
	require.Len(t, r.triggerCh, 1)
	require.NotNil(t, r.Stats().LastTriggerAt)
}

// Failed email recovers on the scheduled retry, then a channel outage burns
// the remaining attempts and leaves a terminal record.
func TestRetrier_WithDispatcherAndStore(t *testing.T) {
	ctx := context.Background()
	st := memparcel.New()
	email := fake.New()
	email.FailTimes = 1
	d := notifications.New(st, st, channel.Senders{models.NotificationEmail: email})

	require.NoError(t, st.CreatePartner(ctx, &models.Partner{ID: "p1", ContactEmail: "p@x.io", APIKey: "pk", IsActive: true}))
	sh := &models.Shipment{
		ID: "s1", TrackingNumber: "PT1", PartnerID: "p1", IsActive: true,
		Recipient: models.Party{Name: "Jane", Email: "jane@x.io"}, CurrentStatus: models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateShipment(ctx, sh))
	d.FanOut(ctx, sh, models.EventShipmentCreated)

	page, err := st.ListNotifications(ctx, models.NotificationFilter{TrackingNumber: "PT1"})
	require.NoError(t, err)
	require.Len(t, page.Docs, 1)
	require.Equal(t, models.NotificationFailed, page.Docs[0].Status)
	require.NotNil(t, page.Docs[0].NextAttemptAt)

	clock := time.Now().UTC()
	r := New(st, d)
	r.now = func() time.Time { return clock }

	// not due yet
	r.RunOnce(ctx)
	require.EqualValues(t, 0, r.Stats().TotalClaimed)

	clock = clock.Add(3 * time.Minute)
	r.RunOnce(ctx)
	n, err := st.GetNotification(ctx, page.Docs[0].ID)
	require.NoError(t, err)
	require.Equal(t, models.NotificationSent, n.Status)
	require.Len(t, email.Sent(), 1)

	// second shipment: channel stays down
	email.SetDown(true)
	sh2 := &models.Shipment{
		ID: "s2", TrackingNumber: "PT2", PartnerID: "p1", IsActive: true,
		Recipient: models.Party{Name: "Jane", Email: "jane@x.io"}, CurrentStatus: models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateShipment(ctx, sh2))
	d.FanOut(ctx, sh2, models.EventShipmentCreated)

	for i := 0; i < 5; i++ {
		clock = clock.Add(time.Hour)
		r.RunOnce(ctx)
	}
	page, err = st.ListNotifications(ctx, models.NotificationFilter{TrackingNumber: "PT2"})
	require.NoError(t, err)
	last := page.Docs[0]
	require.Equal(t, models.NotificationFailed, last.Status)
	require.Equal(t, models.MaxNotificationRetries, last.RetryCount)
	require.Nil(t, last.NextAttemptAt)
}
