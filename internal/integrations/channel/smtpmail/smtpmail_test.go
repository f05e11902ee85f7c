package smtpmail

import (
	"context"
	"errors"
	"testing"

	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func notification() *models.Notification {
	return &models.Notification{
		TrackingNumber: "PT1700000000000AB12",
		Type:           models.NotificationEmail,
		Recipient:      models.NotificationRecipient{Email: "jane@example.com"},
		Subject:        "Package Delivered - Tracking #PT1700000000000AB12",
		Message:        "Your package has been successfully delivered.",
	}
}

func TestSender_Send(t *testing.T) {
	d := &fakeDialer{}
	s := newWithDialer(d, "noreply@parceltrack.io", "https://track.example.com/track")

	require.NoError(t, s.Send(context.Background(), notification()))
	require.Len(t, d.sent, 1)
	require.Equal(t, []string{"jane@example.com"}, d.sent[0].GetHeader("To"))
	require.Equal(t, []string{"noreply@parceltrack.io"}, d.sent[0].GetHeader("From"))
	require.Equal(t, []string{"Package Delivered - Tracking #PT1700000000000AB12"}, d.sent[0].GetHeader("Subject"))
}

func TestSender_Errors(t *testing.T) {
	d := &fakeDialer{err: errors.New("connection refused")}
	s := newWithDialer(d, "noreply@parceltrack.io", "")

	err := s.Send(context.Background(), notification())
	require.ErrorContains(t, err, "Email sending failed")
	require.ErrorContains(t, err, "connection refused")

	n := notification()
	n.Recipient.Email = ""
	require.Error(t, s.Send(context.Background(), n))
	require.Len(t, d.sent, 1)
}

func TestRenderHTML_EscapesAndLinks(t *testing.T) {
	n := notification()
	n.Message = "<script>alert(1)</script>"

	html, err := RenderHTML(n, "https://track.example.com/track")
	require.NoError(t, err)
	require.Contains(t, html, `href="https://track.example.com/track/PT1700000000000AB12"`)
	require.Contains(t, html, "&lt;script&gt;")
	require.NotContains(t, html, "<script>")
}
