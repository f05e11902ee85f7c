package webhookhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClient_Send_OK(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/hooks/parcel", r.URL.Path)
		require.Equal(t, "delivered", r.Header.Get("X-ParcelTrack-Event"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(time.Second)
	err := c.Send(context.Background(), &models.Notification{
		ID: "n1", TrackingNumber: "PT1AAAA", Event: "delivered", Message: "done",
		Type:      models.NotificationWebhook,
		Recipient: models.NotificationRecipient{WebhookURL: srv.URL + "/hooks/parcel"},
	})
	require.NoError(t, err)
	require.Equal(t, "PT1AAAA", got["tracking_number"])
	require.Equal(t, "n1", got["notification_id"])
}

func TestClient_Send_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(time.Second).Send(context.Background(), &models.Notification{
		Type: models.NotificationWebhook, Recipient: models.NotificationRecipient{WebhookURL: srv.URL},
	})
	require.ErrorContains(t, err, "webhook http 502")
}

func TestClient_Send_429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := New(time.Second).Send(context.Background(), &models.Notification{
		Type: models.NotificationWebhook, Recipient: models.NotificationRecipient{WebhookURL: srv.URL},
	})
	require.ErrorContains(t, err, "429")
}

func TestClient_Send_NoURL(t *testing.T) {
	err := New(0).Send(context.Background(), &models.Notification{Type: models.NotificationWebhook})
	require.Error(t, err)
}
