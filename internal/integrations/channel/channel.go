package channel

import (
	"context"

	"github.com/BearBump/ParcelTrack/internal/models"
)

// Sender delivers one notification over its channel. A nil error means the
// channel accepted the message; the caller records the delivery state.
type Sender interface {
	Send(ctx context.Context, n *models.Notification) error
}

type SenderFunc func(ctx context.Context, n *models.Notification) error

func (f SenderFunc) Send(ctx context.Context, n *models.Notification) error { return f(ctx, n) }

// Senders routes by notification type.
type Senders map[models.NotificationType]Sender
