package logstub

import (
	"context"
	"log/slog"

	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/pkg/errors"
)

// Sender stands in for SMS and push providers: it logs what would be sent.
type Sender struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Sender {
	if log == nil {
		log = slog.Default()
	}
	return &Sender{log: log}
}

func (s *Sender) Send(ctx context.Context, n *models.Notification) error {
	to := n.Address()
	if to == "" {
		return errors.Errorf("%s sending failed: recipient is empty", n.Type)
	}
	s.log.InfoContext(ctx, "notification would be sent",
		"type", n.Type,
		"to", to,
		"tracking_number", n.TrackingNumber,
		"message", n.Message,
	)
	return nil
}
