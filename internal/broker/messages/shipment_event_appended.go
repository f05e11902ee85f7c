package messages

import (
	"time"

	"github.com/BearBump/ParcelTrack/internal/models"
)

const ShipmentEventAppendedTopic = "shipment.event_appended"

// ShipmentEventAppended is published after an event lands on a shipment.
// Keyed by tracking number so a shipment's events stay in one partition.
type ShipmentEventAppended struct {
	ShipmentID     string                `json:"shipment_id"`
	TrackingNumber string                `json:"tracking_number"`
	PartnerID      string                `json:"partner_id"`
	CurrentStatus  models.ShipmentStatus `json:"current_status"`
	Event          models.TrackingEvent  `json:"event"`
	OccurredAt     time.Time             `json:"occurred_at"`
}
