package smtpmail

import (
	"bytes"
	"context"
	"html/template"
	"strings"

	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"
)

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Sender struct {
	d           dialer
	from        string
	trackingURL string
}

// New builds an SMTP sender. trackingURL is the public page prefix, the
// tracking number is appended to it.
func New(host string, port int, username, password, from, trackingURL string) *Sender {
	if from == "" {
		from = username
	}
	return newWithDialer(gomail.NewDialer(host, port, username, password), from, trackingURL)
}

func newWithDialer(d dialer, from, trackingURL string) *Sender {
	if trackingURL == "" {
		trackingURL = "http://localhost:3000/track/"
	}
	return &Sender{d: d, from: from, trackingURL: trackingURL}
}

func (s *Sender) Send(ctx context.Context, n *models.Notification) error {
	if n.Recipient.Email == "" {
		return errors.New("Email sending failed: recipient email is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := RenderHTML(n, s.trackingURL)
	if err != nil {
		return err
	}

	m := gomail.NewMessage(gomail.SetEncoding(gomail.Unencoded))
	m.SetHeader("From", s.from)
	m.SetHeader("To", n.Recipient.Email)
	m.SetHeader("Subject", n.Subject)
	m.SetBody("text/plain", n.Message)
	m.AddAlternative("text/html", body)

	if err := s.d.DialAndSend(m); err != nil {
		return errors.Wrap(err, "Email sending failed")
	}
	return nil
}

var page = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Subject}}</title>
</head>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1 style="background-color: #007bff; color: white; padding: 20px; text-align: center;">Parcel Tracking Update</h1>
    <h2>{{.Subject}}</h2>
    <p>Tracking Number: <strong>{{.TrackingNumber}}</strong></p>
    <p>{{.Message}}</p>
    <p>You can track your package anytime at: <a href="{{.TrackURL}}">Track Package</a></p>
    <p style="font-size: 12px; color: #666;">This is an automated message from Parcel Tracking Service.</p>
  </div>
</body>
</html>
`))

func RenderHTML(n *models.Notification, trackingURL string) (string, error) {
	if !strings.HasSuffix(trackingURL, "/") {
		trackingURL += "/"
	}
	var buf bytes.Buffer
	err := page.Execute(&buf, struct {
		Subject        string
		TrackingNumber string
		Message        string
		TrackURL       string
	}{n.Subject, n.TrackingNumber, n.Message, trackingURL + n.TrackingNumber})
	if err != nil {
		return "", errors.Wrap(err, "render email")
	}
	return buf.String(), nil
}
