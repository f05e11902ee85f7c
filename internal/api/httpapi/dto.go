package httpapi

import (
	"time"

	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/BearBump/ParcelTrack/internal/services/identity"
	"github.com/BearBump/ParcelTrack/internal/services/notifications"
	"github.com/BearBump/ParcelTrack/internal/services/shipments"
)

// Party and package rules come from the validate tags on models; the
// shipments service runs the same tags after trimming.
type createShipmentRequest struct {
	PartnerTrackingNumber string             `json:"partnerTrackingNumber,omitempty"`
	Sender                models.Party       `json:"sender"`
	Recipient             models.Party       `json:"recipient"`
	Package               models.Package     `json:"package"`
	ServiceType           models.ServiceType `json:"serviceType,omitempty" validate:"omitempty,oneof=standard express overnight same_day"`
	EstimatedDeliveryDate *time.Time         `json:"estimatedDeliveryDate,omitempty"`
	Metadata              map[string]string  `json:"metadata,omitempty"`
}

func (req createShipmentRequest) input() shipments.CreateInput {
	return shipments.CreateInput{
		PartnerTrackingNumber: req.PartnerTrackingNumber,
		Sender:                req.Sender,
		Recipient:             req.Recipient,
		Package:               req.Package,
		ServiceType:           req.ServiceType,
		EstimatedDeliveryDate: req.EstimatedDeliveryDate,
		Metadata:              req.Metadata,
	}
}

type appendEventRequest struct {
	EventType   models.EventType      `json:"eventType" validate:"required"`
	Status      models.ShipmentStatus `json:"status,omitempty"`
	Description string                `json:"description" validate:"required"`
	Location    *models.Location      `json:"location,omitempty"`
	Timestamp   *time.Time            `json:"timestamp,omitempty"`
	Metadata    map[string]string     `json:"metadata,omitempty"`
}

func (req appendEventRequest) input() shipments.AppendEventInput {
	return shipments.AppendEventInput{
		EventType:   req.EventType,
		Status:      req.Status,
		Description: req.Description,
		Location:    req.Location,
		Timestamp:   req.Timestamp,
		Metadata:    req.Metadata,
	}
}

// updateShipmentRequest has no slot for trackingNumber, partnerId, events or
// currentStatus; those keys are dropped by the decoder.
type updateShipmentRequest struct {
	PartnerTrackingNumber *string             `json:"partnerTrackingNumber,omitempty"`
	Sender                *models.Party       `json:"sender,omitempty"`
	Recipient             *models.Party       `json:"recipient,omitempty"`
	Package               *models.Package     `json:"package,omitempty"`
	ServiceType           *models.ServiceType `json:"serviceType,omitempty"`
	EstimatedDeliveryDate *time.Time          `json:"estimatedDeliveryDate,omitempty"`
	Metadata              map[string]string   `json:"metadata,omitempty"`
	IsActive              *bool               `json:"isActive,omitempty"`
}

func (req updateShipmentRequest) patch() models.ShipmentPatch {
	return models.ShipmentPatch{
		PartnerTrackingNumber: req.PartnerTrackingNumber,
		Sender:                req.Sender,
		Recipient:             req.Recipient,
		Package:               req.Package,
		ServiceType:           req.ServiceType,
		EstimatedDeliveryDate: req.EstimatedDeliveryDate,
		Metadata:              req.Metadata,
		IsActive:              req.IsActive,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type partnerLoginRequest struct {
	APIKey    string `json:"apiKey" validate:"required"`
	APISecret string `json:"apiSecret" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type preferencesRequest struct {
	Preferences identity.PreferencesPatch `json:"preferences"`
}

type updateUserRequest struct {
	FirstName *string         `json:"firstName,omitempty"`
	LastName  *string         `json:"lastName,omitempty"`
	Phone     *string         `json:"phone,omitempty"`
	Address   *models.Address `json:"address,omitempty" validate:"-"`
}

func (req updateUserRequest) patch() models.UserPatch {
	return models.UserPatch{FirstName: req.FirstName, LastName: req.LastName, Phone: req.Phone, Address: req.Address}
}

type userSubscriptionRequest struct {
	TrackingNumber string                     `json:"trackingNumber" validate:"required"`
	Email          string                     `json:"email,omitempty" validate:"omitempty,email"`
	Phone          string                     `json:"phone,omitempty"`
	Preferences    *identity.PreferencesPatch `json:"preferences,omitempty"`
}

type updatePartnerRequest struct {
	CompanyName          *string                      `json:"companyName,omitempty"`
	ContactPhone         *string                      `json:"contactPhone,omitempty"`
	PartnerType          *models.PartnerType          `json:"partnerType,omitempty"`
	Address              *models.Address              `json:"address,omitempty" validate:"-"`
	BusinessRegistration *models.BusinessRegistration `json:"businessRegistration,omitempty"`
}

func (req updatePartnerRequest) patch() models.PartnerPatch {
	return models.PartnerPatch{
		CompanyName:          req.CompanyName,
		ContactPhone:         req.ContactPhone,
		PartnerType:          req.PartnerType,
		Address:              req.Address,
		BusinessRegistration: req.BusinessRegistration,
	}
}

type serviceAreasRequest struct {
	ServiceAreas []models.ServiceArea `json:"serviceAreas" validate:"required"`
}

type webhookRequest struct {
	WebhookURL string `json:"webhookUrl"`
}

type partnerStatusRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

type subscribeRequest struct {
	TrackingNumber string `json:"trackingNumber" validate:"required"`
	Email          string `json:"email,omitempty" validate:"omitempty,email"`
	Phone          string `json:"phone,omitempty"`
}

func (req subscribeRequest) input() notifications.SubscribeInput {
	return notifications.SubscribeInput{TrackingNumber: req.TrackingNumber, Email: req.Email, Phone: req.Phone}
}

type sendNotificationRequest struct {
	TrackingNumber string                       `json:"trackingNumber" validate:"required"`
	Type           models.NotificationType      `json:"type" validate:"required,oneof=email sms push webhook"`
	Recipient      models.NotificationRecipient `json:"recipient"`
	Subject        string                       `json:"subject,omitempty"`
	Message        string                       `json:"message" validate:"required"`
}

func (req sendNotificationRequest) input() notifications.ManualInput {
	return notifications.ManualInput{
		TrackingNumber: req.TrackingNumber,
		Type:           req.Type,
		Recipient:      req.Recipient,
		Subject:        req.Subject,
		Message:        req.Message,
	}
}

// recentShipment is the dashboard row under /partners/me/stats.
type recentShipment struct {
	TrackingNumber string                `json:"trackingNumber"`
	CurrentStatus  models.ShipmentStatus `json:"currentStatus"`
	RecipientName  string                `json:"recipientName"`
	CreatedAt      time.Time             `json:"createdAt"`
}
