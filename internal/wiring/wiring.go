// Package wiring builds the pieces both binaries share: storage, the
// notification channels and the Redis clients.
package wiring

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/ParcelTrack/config"
	"github.com/BearBump/ParcelTrack/internal/auth"
	"github.com/BearBump/ParcelTrack/internal/cache/rediscache"
	"github.com/BearBump/ParcelTrack/internal/integrations/channel"
	"github.com/BearBump/ParcelTrack/internal/integrations/channel/logstub"
	"github.com/BearBump/ParcelTrack/internal/integrations/channel/smtpmail"
	"github.com/BearBump/ParcelTrack/internal/integrations/channel/webhookhttp"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/BearBump/ParcelTrack/internal/services/identity"
	"github.com/BearBump/ParcelTrack/internal/services/notifications"
	"github.com/BearBump/ParcelTrack/internal/services/retrier"
	"github.com/BearBump/ParcelTrack/internal/services/shipments"
	"github.com/BearBump/ParcelTrack/internal/storage/memparcel"
	"github.com/BearBump/ParcelTrack/internal/storage/pgparcel"
	"github.com/pkg/errors"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Store is everything the services need from persistence. memparcel and
// pgparcel both satisfy it.
type Store interface {
	shipments.Repository
	notifications.Repository
	notifications.ShipmentLookup
	identity.Repository
	auth.IdentityStore
	retrier.Repository
}

var (
	_ Store = (*memparcel.Storage)(nil)
	_ Store = (*pgparcel.Storage)(nil)
)

// OpenStore picks the driver from config. Postgres is retried until wait
// runs out, the database container usually starts after us.
func OpenStore(cfg *config.Config, wait time.Duration) (Store, func(), error) {
	switch cfg.ParcelTrack.StorageDriver {
	case DriverMemory:
		slog.Warn("using in-memory storage, data is lost on restart")
		return memparcel.New(), func() {}, nil
	case "", DriverPostgres:
		st, err := openPostgresWithRetry(cfg.Database.ConnString(), wait)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.ParcelTrack.StorageDriver)
	}
}

func openPostgresWithRetry(connString string, wait time.Duration) (*pgparcel.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for {
		st, err := pgparcel.New(connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		if !time.Now().Before(deadline) {
			return nil, errors.Wrapf(lastErr, "postgres is not ready after %s", wait)
		}
		time.Sleep(time.Second)
	}
}

// Senders maps each notification type to its channel. Email goes over SMTP
// when a host is configured, otherwise every channel but webhook is logged.
func Senders(cfg *config.Config) channel.Senders {
	stub := logstub.New(slog.Default())
	out := channel.Senders{
		models.NotificationEmail:   stub,
		models.NotificationSMS:     stub,
		models.NotificationPush:    stub,
		models.NotificationWebhook: webhookhttp.New(10 * time.Second),
	}
	if cfg.SMTP.Host != "" {
		out[models.NotificationEmail] = smtpmail.New(cfg.SMTP.Host, cfg.SMTP.Port,
			cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, cfg.ParcelTrack.PublicTrackingURL)
	}
	return out
}

// Redis returns nil clients when Redis is not configured; caching and rate
// limiting are then off.
func Redis(cfg *config.Config) (*rediscache.RedisCache, *rediscache.RateLimiter) {
	addr := cfg.Redis.Addr()
	if addr == "" {
		return nil, nil
	}
	rc := rediscache.New(addr)
	return rc, rediscache.NewRateLimiterWithClient(rc.Client())
}

// Tokens builds the JWT issuer and password hasher from the auth section.
func Tokens(cfg *config.Config) (*auth.TokenIssuer, *auth.Hasher, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, nil, errors.New("auth.jwt_secret is required")
	}
	ttl := time.Duration(cfg.Auth.TokenTTLSeconds) * time.Second
	return auth.NewTokenIssuer(cfg.Auth.JWTSecret, ttl), auth.NewHasher(cfg.Auth.BcryptCost), nil
}
