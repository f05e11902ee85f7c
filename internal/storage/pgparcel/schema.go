package pgparcel

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS partners (
  id TEXT PRIMARY KEY,
  company_name TEXT NOT NULL,
  contact_email TEXT NOT NULL UNIQUE,
  contact_phone TEXT NOT NULL DEFAULT '',
  partner_type TEXT NOT NULL,
  address JSONB NULL,
  business_registration JSONB NULL,
  api_key TEXT NOT NULL UNIQUE,
  api_secret_hash TEXT NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  rate_limit JSONB NOT NULL,
  webhook_url TEXT NOT NULL DEFAULT '',
  service_areas JSONB NOT NULL DEFAULT '[]',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_partners_created_at ON partners(created_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  phone TEXT NOT NULL DEFAULT '',
  address JSONB NULL,
  role TEXT NOT NULL,
  preferences JSONB NOT NULL,
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// events is the embedded timeline; one UPDATE appends to it and moves
		// current_status in the same row write.
		`
CREATE TABLE IF NOT EXISTS shipments (
  id TEXT PRIMARY KEY,
  tracking_number TEXT NOT NULL UNIQUE,
  partner_tracking_number TEXT NOT NULL DEFAULT '',
  partner_id TEXT NOT NULL REFERENCES partners(id),
  sender JSONB NOT NULL,
  recipient JSONB NOT NULL,
  recipient_email TEXT NOT NULL DEFAULT '',
  package JSONB NOT NULL,
  service_type TEXT NOT NULL,
  current_status TEXT NOT NULL,
  estimated_delivery_date TIMESTAMPTZ NULL,
  actual_delivery_date TIMESTAMPTZ NULL,
  events JSONB NOT NULL DEFAULT '[]',
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  metadata JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_partner_created ON shipments(partner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_recipient_email ON shipments(recipient_email)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_current_status ON shipments(current_status)`,
		`
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  tracking_number TEXT NOT NULL,
  shipment_id TEXT NOT NULL DEFAULT '',
  partner_id TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL,
  event TEXT NOT NULL,
  recipient JSONB NOT NULL,
  subject TEXT NOT NULL DEFAULT '',
  message TEXT NOT NULL,
  status TEXT NOT NULL,
  sent_at TIMESTAMPTZ NULL,
  delivered_at TIMESTAMPTZ NULL,
  failure_reason TEXT NOT NULL DEFAULT '',
  retry_count INT NOT NULL DEFAULT 0,
  next_attempt_at TIMESTAMPTZ NULL,
  metadata JSONB NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_tracking_created ON notifications(tracking_number, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_partner_created ON notifications(partner_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_due ON notifications(next_attempt_at) WHERE status = 'failed'`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
