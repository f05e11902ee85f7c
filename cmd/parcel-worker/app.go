package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/ParcelTrack/config"
	"github.com/BearBump/ParcelTrack/internal/broker/kafka"
	"github.com/BearBump/ParcelTrack/internal/broker/messages"
	"github.com/BearBump/ParcelTrack/internal/cache/rediscache"
	"github.com/BearBump/ParcelTrack/internal/integrations/channel"
	"github.com/BearBump/ParcelTrack/internal/metrics"
	"github.com/BearBump/ParcelTrack/internal/services/notifications"
	"github.com/BearBump/ParcelTrack/internal/services/retrier"
	"github.com/BearBump/ParcelTrack/internal/wiring"
	"golang.org/x/sync/errgroup"
)

type eventConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
	Close() error
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (store wiring.Store, closeFn func(), err error)
	newRateLimiter func(cfg *config.Config) retrier.RateLimiter
	newSenders     func(cfg *config.Config) channel.Senders
	newConsumer    func(cfg *config.Config) eventConsumer
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (wiring.Store, func(), error) {
			return wiring.OpenStore(cfg, 60*time.Second)
		},
		newRateLimiter: func(cfg *config.Config) retrier.RateLimiter {
			addr := cfg.Redis.Addr()
			if addr == "" {
				return nil
			}
			return rediscache.NewRateLimiter(addr)
		},
		newSenders: wiring.Senders,
		newConsumer: func(cfg *config.Config) eventConsumer {
			brokers := cfg.Kafka.Brokers()
			if len(brokers) == 0 {
				return nil
			}
			return kafka.NewConsumer(brokers, eventsTopic(cfg), consumerGroup(cfg))
		},
	}
}

func eventsTopic(cfg *config.Config) string {
	if cfg.Kafka.ShipmentEventsTopicName != "" {
		return cfg.Kafka.ShipmentEventsTopicName
	}
	return "shipment.event_appended"
}

func consumerGroup(cfg *config.Config) string {
	if cfg.ParcelTrack.KafkaConsumerGroup != "" {
		return cfg.ParcelTrack.KafkaConsumerGroup
	}
	return "parcel-worker"
}

type workerSettings struct {
	pollInterval time.Duration
	batchSize    int
	concurrency  int
	lease        time.Duration
	perMinute    int64
}

func settingsFrom(cfg *config.Config) workerSettings {
	s := workerSettings{
		pollInterval: time.Duration(cfg.ParcelTrack.WorkerPollIntervalSeconds) * time.Second,
		batchSize:    cfg.ParcelTrack.WorkerBatchSize,
		concurrency:  cfg.ParcelTrack.WorkerConcurrency,
		lease:        time.Duration(cfg.ParcelTrack.WorkerLeaseSeconds) * time.Second,
		perMinute:    int64(cfg.ParcelTrack.WorkerRateLimitPerMinute),
	}
	if s.pollInterval <= 0 {
		s.pollInterval = 30 * time.Second
	}
	if s.batchSize <= 0 {
		s.batchSize = 50
	}
	if s.concurrency <= 0 {
		s.concurrency = 5
	}
	if s.lease <= 0 {
		s.lease = 2 * time.Minute
	}
	if s.perMinute <= 0 {
		s.perMinute = 60
	}
	return s
}

// RunParcelWorker retries due notifications and, when Kafka is configured,
// posts shipment events to partner webhooks. The ops HTTP server starts when
// worker_http_addr is set.
func RunParcelWorker(ctx context.Context, cfg *config.Config, f workerFactories, swaggerPath string) error {
	set := settingsFrom(cfg)

	store, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	m := metrics.New()
	dispatcher := notifications.New(store, store, f.newSenders(cfg)).WithMetrics(m)

	r := retrier.New(store, dispatcher).
		WithSettings(set.pollInterval, set.batchSize, set.concurrency, set.lease).
		WithMetrics(m)
	if rl := f.newRateLimiter(cfg); rl != nil {
		r.WithRateLimit(rl, set.perMinute)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.Run(gctx) })

	if consumer := f.newConsumer(cfg); consumer != nil {
		defer func() { _ = consumer.Close() }()
		g.Go(func() error {
			consumeWebhookEvents(gctx, consumer, dispatcher)
			return nil
		})
	}

	if cfg.ParcelTrack.WorkerHTTPAddr != "" {
		g.Go(func() error {
			return runWorkerHTTPServer(gctx, workerHTTPOpts{
				httpAddr:    cfg.ParcelTrack.WorkerHTTPAddr,
				swaggerPath: swaggerPath,
				retrier:     r,
				settings:    set,
				metrics:     m,
			})
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

type webhookFanOut interface {
	WebhookFanOut(ctx context.Context, msg messages.ShipmentEventAppended) error
}

// consumeWebhookEvents keeps the consumer alive until ctx is done. A failed
// handler stops Consume without committing, so the message is read again
// after the pause.
func consumeWebhookEvents(ctx context.Context, c eventConsumer, d webhookFanOut) {
	slog.Info("kafka consumer started")
	for {
		err := c.Consume(ctx, func(_ []byte, value []byte) error {
			var msg messages.ShipmentEventAppended
			if err := json.Unmarshal(value, &msg); err != nil {
				slog.Warn("skip malformed shipment event", "err", err)
				return nil
			}
			return d.WebhookFanOut(ctx, msg)
		})
		if ctx.Err() != nil {
			return
		}
		slog.Error("kafka consumer stopped, restarting", "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}
