package models

import (
	"maps"
	"time"
)

type NotificationType string

const (
	NotificationEmail   NotificationType = "email"
	NotificationSMS     NotificationType = "sms"
	NotificationPush    NotificationType = "push"
	NotificationWebhook NotificationType = "webhook"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationEmail, NotificationSMS, NotificationPush, NotificationWebhook:
		return true
	}
	return false
}

type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "pending"
	NotificationSent      NotificationStatus = "sent"
	NotificationDelivered NotificationStatus = "delivered"
	NotificationFailed    NotificationStatus = "failed"
)

func (s NotificationStatus) Valid() bool {
	switch s {
	case NotificationPending, NotificationSent, NotificationDelivered, NotificationFailed:
		return true
	}
	return false
}

// Trigger names for notifications not caused by a tracking event.
const (
	NotificationEventSubscription = "subscription"
	NotificationEventManual       = "manual"
)

// MaxNotificationRetries is the number of failed attempts after which a
// notification stays failed until someone retries it by hand.
const MaxNotificationRetries = 3

type NotificationRecipient struct {
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DeviceToken string `json:"deviceToken,omitempty"`
	WebhookURL  string `json:"webhookUrl,omitempty"`
}

type Notification struct {
	ID             string                `json:"id"`
	TrackingNumber string                `json:"trackingNumber"`
	ShipmentID     string                `json:"shipmentId"`
	PartnerID      string                `json:"partnerId,omitempty"`
	Type           NotificationType      `json:"type"`
	Event          string                `json:"event"`
	Recipient      NotificationRecipient `json:"recipient"`
	Subject        string                `json:"subject,omitempty"`
	Message        string                `json:"message"`
	Status         NotificationStatus    `json:"status"`
	SentAt         *time.Time            `json:"sentAt,omitempty"`
	DeliveredAt    *time.Time            `json:"deliveredAt,omitempty"`
	FailureReason  string                `json:"failureReason,omitempty"`
	RetryCount     int                   `json:"retryCount"`
	NextAttemptAt  *time.Time            `json:"nextAttemptAt,omitempty"`
	Metadata       map[string]string     `json:"metadata,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

// Address is the channel-specific destination.
func (n *Notification) Address() string {
	switch n.Type {
	case NotificationEmail:
		return n.Recipient.Email
	case NotificationSMS:
		return n.Recipient.Phone
	case NotificationPush:
		return n.Recipient.DeviceToken
	case NotificationWebhook:
		return n.Recipient.WebhookURL
	}
	return ""
}

func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	c := *n
	c.SentAt = cloneTime(n.SentAt)
	c.DeliveredAt = cloneTime(n.DeliveredAt)
	c.NextAttemptAt = cloneTime(n.NextAttemptAt)
	c.Metadata = maps.Clone(n.Metadata)
	return &c
}

type NotificationFilter struct {
	PartnerID      string
	TrackingNumber string
	Status         *NotificationStatus
	Type           *NotificationType
	From           *time.Time
	To             *time.Time
	Page           int
	Limit          int
}

type NotificationStats struct {
	Total           int                        `json:"total"`
	StatusBreakdown map[NotificationStatus]int `json:"statusBreakdown"`
	TypeBreakdown   map[NotificationType]int   `json:"typeBreakdown"`
	SuccessRate     float64                    `json:"successRate"`
	Period          Period                     `json:"period"`
}

type NotificationTemplate struct {
	Event   string `json:"event"`
	Subject string `json:"subject"`
	Email   string `json:"email"`
	SMS     string `json:"sms"`
}
