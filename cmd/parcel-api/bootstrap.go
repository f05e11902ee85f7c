package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ParcelTrack/config"
	"github.com/BearBump/ParcelTrack/internal/api/httpapi"
	"github.com/BearBump/ParcelTrack/internal/auth"
	"github.com/BearBump/ParcelTrack/internal/broker/kafka"
	"github.com/BearBump/ParcelTrack/internal/cache"
	"github.com/BearBump/ParcelTrack/internal/metrics"
	"github.com/BearBump/ParcelTrack/internal/services/identity"
	"github.com/BearBump/ParcelTrack/internal/services/notifications"
	"github.com/BearBump/ParcelTrack/internal/services/shipments"
	"github.com/BearBump/ParcelTrack/internal/wiring"
)

type parcelAPIApp struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    parcelAPIOpts
	handler http.Handler
	metrics *metrics.Metrics
	closers []func()
}

func mustBootstrapParcelAPI() *parcelAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	app, err := buildParcelAPI(cfg)
	if err != nil {
		panic(err)
	}
	app.opts.swaggerPath = os.Getenv("swaggerPath")
	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return app
}

func buildParcelAPI(cfg *config.Config) (*parcelAPIApp, error) {
	httpAddr := cfg.ParcelTrack.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	cacheTTL := time.Duration(cfg.ParcelTrack.PublicCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	topic := cfg.Kafka.ShipmentEventsTopicName
	if topic == "" {
		topic = "shipment.event_appended"
	}

	tokens, hasher, err := wiring.Tokens(cfg)
	if err != nil {
		return nil, err
	}
	st, closeDB, err := wiring.OpenStore(cfg, 60*time.Second)
	if err != nil {
		return nil, err
	}
	app := &parcelAPIApp{opts: parcelAPIOpts{httpAddr: httpAddr}, closers: []func(){closeDB}}

	m := metrics.New()
	app.metrics = m

	var publicCache cache.BytesCache
	var limiter httpapi.RateLimiter
	if rc, rl := wiring.Redis(cfg); rc != nil {
		publicCache, limiter = rc, rl
		app.closers = append(app.closers, func() { _ = rc.Close() })
	}

	dispatcher := notifications.New(st, st, wiring.Senders(cfg)).WithMetrics(m)
	shipmentSvc := shipments.New(st, publicCache, cacheTTL, dispatcher).WithMetrics(m)
	if brokers := cfg.Kafka.Brokers(); len(brokers) > 0 {
		producer := kafka.NewProducer(brokers)
		shipmentSvc.WithPublisher(producer, topic)
		app.closers = append(app.closers, func() { _ = producer.Close() })
	}

	authn := auth.NewAuthenticator(st, tokens)
	app.handler = httpapi.New(httpapi.Deps{
		Shipments:     shipmentSvc,
		Notifications: dispatcher,
		Identity:      identity.New(st, hasher, authn),
		Authn:         authn,
		Limiter:       limiter,
		Metrics:       m,
	}).Routes()
	return app, nil
}

func (a *parcelAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *parcelAPIApp) Run() error {
	return runParcelAPI(a.ctx, a.opts, a.handler, a.metrics)
}
