package logstub

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/stretchr/testify/require"
)

func TestSender_LogsInsteadOfSending(t *testing.T) {
	var buf bytes.Buffer
	s := New(slog.New(slog.NewTextHandler(&buf, nil)))

	err := s.Send(context.Background(), &models.Notification{
		TrackingNumber: "PT1AAAA",
		Type:           models.NotificationSMS,
		Recipient:      models.NotificationRecipient{Phone: "+15550100"},
		Message:        "Package PT1AAAA delivered",
	})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "to=+15550100")
	require.Contains(t, buf.String(), "tracking_number=PT1AAAA")
}

func TestSender_MissingRecipient(t *testing.T) {
	s := New(nil)
	err := s.Send(context.Background(), &models.Notification{Type: models.NotificationPush})
	require.ErrorContains(t, err, "push sending failed")
}
