package notifications

import (
	"fmt"
	"strings"

	"github.com/BearBump/ParcelTrack/internal/models"
)

type template struct {
	subject string // prefix before " - Tracking #TN"
	email   string
	sms     string // %s is the tracking number
}

var templates = map[models.EventType]template{
	models.EventShipmentCreated:   {"Shipment Created", "Your shipment has been created and is awaiting pickup.", "Shipment %s created"},
	models.EventPackagePickedUp:   {"Package Picked Up", "Your package has been picked up and is on its way.", "Package %s picked up"},
	models.EventInTransit:         {"Package In Transit", "Your package is in transit.", "Package %s in transit"},
	models.EventOutForDelivery:    {"Out for Delivery", "Your package is out for delivery and will arrive soon.", "Package %s out for delivery"},
	models.EventDelivered:         {"Package Delivered", "Your package has been successfully delivered.", "Package %s delivered"},
	models.EventDeliveryAttempted: {"Delivery Attempted", "A delivery attempt was made. Please check for more details.", "Delivery attempted for %s"},
	models.EventException:         {"Delivery Exception", "There was an exception with your shipment. Please contact customer service.", "Exception for package %s"},
	models.EventReturnedToSender:  {"Package Returned", "Your package is being returned to the sender.", "Package %s returned"},
}

// templateOrder fixes the order of the public template listing.
var templateOrder = []models.EventType{
	models.EventShipmentCreated, models.EventPackagePickedUp, models.EventInTransit, models.EventOutForDelivery,
	models.EventDelivered, models.EventDeliveryAttempted, models.EventException, models.EventReturnedToSender,
}

func emailSubject(et models.EventType, tn string) string {
	prefix := "Shipment Update"
	if t, ok := templates[et]; ok {
		prefix = t.subject
	}
	return fmt.Sprintf("%s - Tracking #%s", prefix, tn)
}

func emailMessage(et models.EventType, sh *models.Shipment) string {
	t, ok := templates[et]
	if !ok {
		return "Your shipment status has been updated."
	}
	if et == models.EventInTransit {
		if ev, ok := sh.LatestEvent(); ok && ev.Location != nil && ev.Location.City != "" {
			return fmt.Sprintf("Your package is in transit and currently in %s.", ev.Location.City)
		}
	}
	return t.email
}

func smsMessage(et models.EventType, tn string) string {
	t, ok := templates[et]
	if !ok {
		return fmt.Sprintf("Update for package %s", tn)
	}
	return fmt.Sprintf(t.sms, tn)
}

// Templates lists the static table with a {trackingNumber} placeholder.
func Templates() []models.NotificationTemplate {
	const placeholder = "{trackingNumber}"
	out := make([]models.NotificationTemplate, 0, len(templateOrder))
	for _, et := range templateOrder {
		t := templates[et]
		out = append(out, models.NotificationTemplate{
			Event:   string(et),
			Subject: emailSubject(et, placeholder),
			Email:   t.email,
			SMS:     strings.ReplaceAll(t.sms, "%s", placeholder),
		})
	}
	return out
}
