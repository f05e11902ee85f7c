package webhookhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/pkg/errors"
)

type Client struct {
	httpc     *http.Client
	userAgent string
}

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpc:     &http.Client{Timeout: timeout},
		userAgent: "ParcelTrack-Webhook/1.0",
	}
}

type payload struct {
	NotificationID string            `json:"notification_id"`
	TrackingNumber string            `json:"tracking_number"`
	ShipmentID     string            `json:"shipment_id"`
	Event          string            `json:"event"`
	Subject        string            `json:"subject,omitempty"`
	Message        string            `json:"message"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	SentAt         time.Time         `json:"sent_at"`
}

func (c *Client) Send(ctx context.Context, n *models.Notification) error {
	if n.Recipient.WebhookURL == "" {
		return errors.New("Webhook sending failed: webhook url is empty")
	}
	b, err := json.Marshal(payload{
		NotificationID: n.ID,
		TrackingNumber: n.TrackingNumber,
		ShipmentID:     n.ShipmentID,
		Event:          n.Event,
		Subject:        n.Subject,
		Message:        n.Message,
		Metadata:       n.Metadata,
		SentAt:         time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.Recipient.WebhookURL, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-ParcelTrack-Event", n.Event)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "Webhook sending failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("webhook rate limit (429)")
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook http %d", resp.StatusCode)
	}
	return nil
}
