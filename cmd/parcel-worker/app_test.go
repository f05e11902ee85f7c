package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ParcelTrack/config"
	"github.com/BearBump/ParcelTrack/internal/broker/messages"
	"github.com/BearBump/ParcelTrack/internal/integrations/channel"
	"github.com/BearBump/ParcelTrack/internal/integrations/channel/fake"
	"github.com/BearBump/ParcelTrack/internal/metrics"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/BearBump/ParcelTrack/internal/services/notifications"
	"github.com/BearBump/ParcelTrack/internal/services/retrier"
	"github.com/BearBump/ParcelTrack/internal/storage/memparcel"
	"github.com/BearBump/ParcelTrack/internal/wiring"
	"github.com/stretchr/testify/require"
)

func TestSettingsFrom_Defaults(t *testing.T) {
	s := settingsFrom(&config.Config{})
	require.Equal(t, 30*time.Second, s.pollInterval)
	require.Equal(t, 50, s.batchSize)
	require.Equal(t, 5, s.concurrency)
	require.Equal(t, 2*time.Minute, s.lease)
	require.EqualValues(t, 60, s.perMinute)

	s = settingsFrom(&config.Config{ParcelTrack: config.ParcelTrackConfig{
		WorkerPollIntervalSeconds: 5, WorkerBatchSize: 10, WorkerConcurrency: 2,
		WorkerLeaseSeconds: 30, WorkerRateLimitPerMinute: 7,
	}})
	require.Equal(t, 5*time.Second, s.pollInterval)
	require.Equal(t, 10, s.batchSize)
	require.Equal(t, 2, s.concurrency)
	require.Equal(t, 30*time.Second, s.lease)
	require.EqualValues(t, 7, s.perMinute)
}

func TestDefaultWorkerFactories_OptionalDeps(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{}
	require.Nil(t, f.newConsumer(cfg))
	require.Nil(t, f.newRateLimiter(cfg))

	senders := f.newSenders(cfg)
	for _, typ := range []models.NotificationType{models.NotificationEmail, models.NotificationSMS, models.NotificationPush, models.NotificationWebhook} {
		require.Contains(t, senders, typ)
	}

	cfg = &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	c := f.newConsumer(cfg)
	require.NotNil(t, c)
	_ = c.Close()
	require.NotNil(t, f.newRateLimiter(cfg))
	require.Equal(t, "parcel-worker", consumerGroup(cfg))
	require.Equal(t, "shipment.event_appended", eventsTopic(cfg))
}

func TestRunParcelWorker_ContextCanceled(t *testing.T) {
	calledClose := false
	f := workerFactories{
		newStorage: func(cfg *config.Config) (wiring.Store, func(), error) {
			return memparcel.New(), func() { calledClose = true }, nil
		},
		newRateLimiter: func(cfg *config.Config) retrier.RateLimiter { return nil },
		newSenders:     func(cfg *config.Config) channel.Senders { return channel.Senders{} },
		newConsumer:    func(cfg *config.Config) eventConsumer { return nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunParcelWorker(ctx, &config.Config{}, f, "")
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, calledClose)
}

func TestRunParcelWorker_RetriesDueNotifications(t *testing.T) {
	st := memparcel.New()
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	require.NoError(t, st.CreatePartner(ctx, &models.Partner{ID: "p1", ContactEmail: "p@x.io", APIKey: "pk", IsActive: true, CreatedAt: now}))
	require.NoError(t, st.CreateShipment(ctx, &models.Shipment{ID: "s1", TrackingNumber: "PT1", PartnerID: "p1", IsActive: true, CurrentStatus: models.StatusInTransit, CreatedAt: now}))
	require.NoError(t, st.CreateNotification(ctx, &models.Notification{
		ID: "n1", TrackingNumber: "PT1", ShipmentID: "s1", PartnerID: "p1",
		Type: models.NotificationEmail, Recipient: models.NotificationRecipient{Email: "r@x.io"},
		Message: "m", Status: models.NotificationFailed, RetryCount: 1, NextAttemptAt: &past, CreatedAt: now,
	}))

	email := fake.New()
	f := workerFactories{
		newStorage:     func(cfg *config.Config) (wiring.Store, func(), error) { return st, nil, nil },
		newRateLimiter: func(cfg *config.Config) retrier.RateLimiter { return nil },
		newSenders: func(cfg *config.Config) channel.Senders {
			return channel.Senders{models.NotificationEmail: email}
		},
		newConsumer: func(cfg *config.Config) eventConsumer { return nil },
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cfg := &config.Config{ParcelTrack: config.ParcelTrackConfig{WorkerPollIntervalSeconds: 1}}
	errCh := make(chan error, 1)
	go func() { errCh <- RunParcelWorker(runCtx, cfg, f, "") }()

	require.Eventually(t, func() bool {
		n, err := st.GetNotification(ctx, "n1")
		return err == nil && n.Status == models.NotificationSent
	}, 5*time.Second, 50*time.Millisecond)
	require.Len(t, email.Sent(), 1)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}

type queuedConsumer struct {
	mu     sync.Mutex
	values [][]byte
	calls  int
}

func (c *queuedConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	c.mu.Lock()
	c.calls++
	values := c.values
	c.values = nil
	c.mu.Unlock()
	for _, v := range values {
		if err := handler(nil, v); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *queuedConsumer) Close() error { return nil }

type recordingFanOut struct {
	mu   sync.Mutex
	msgs []messages.ShipmentEventAppended
}

func (r *recordingFanOut) WebhookFanOut(_ context.Context, msg messages.ShipmentEventAppended) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingFanOut) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestConsumeWebhookEvents_SkipsMalformed(t *testing.T) {
	valid, err := json.Marshal(messages.ShipmentEventAppended{TrackingNumber: "PT1", PartnerID: "p1"})
	require.NoError(t, err)
	c := &queuedConsumer{values: [][]byte{[]byte("{broken"), valid}}
	rec := &recordingFanOut{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumeWebhookEvents(ctx, c, rec)
		close(done)
	}()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer loop did not stop")
	}
	require.Equal(t, "PT1", rec.msgs[0].TrackingNumber)
}

func TestWorkerHTTPServer_Endpoints(t *testing.T) {
	st := memparcel.New()
	m := metrics.New()
	r := retrier.New(st, notifications.New(st, st, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr: "127.0.0.1:0",
			onListen: func(addr string) { addrCh <- addr },
			retrier:  r,
			settings: settingsFrom(&config.Config{}),
			metrics:  m,
		})
	}()
	base := "http://" + <-addrCh

	for _, path := range []string{"/healthz", "/readyz", "/stats", "/config", "/metrics"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err, path)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	resp, err := http.Post(base+"/trigger", "application/json", nil)
	require.NoError(t, err)
	var out map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.True(t, out["triggered"])
	require.NotNil(t, r.Stats().LastTriggerAt)

	resp, err = http.Get(base + "/config")
	require.NoError(t, err)
	var cfgOut map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfgOut))
	resp.Body.Close()
	require.EqualValues(t, 50, cfgOut["batchSize"])

	cancel()
	require.NoError(t, <-errCh)
}
