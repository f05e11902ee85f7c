package models

import "slices"

// eventStatusRules lists the statuses an event type may carry. The first
// entry is what an event gets when the caller omits the status.
var eventStatusRules = map[EventType][]ShipmentStatus{
	EventShipmentCreated:   {StatusPending},
	EventPackagePickedUp:   {StatusInTransit, StatusPending},
	EventInTransit:         {StatusInTransit},
	EventOutForDelivery:    {StatusInTransit},
	EventDelivered:         {StatusDelivered},
	EventDeliveryAttempted: {StatusInTransit, StatusException},
	EventException:         {StatusException},
	EventReturnedToSender:  {StatusReturned},
	EventLost:              {StatusException},
	EventDamaged:           {StatusException},
}

func AllowedStatuses(et EventType) []ShipmentStatus {
	return slices.Clone(eventStatusRules[et])
}

// ResolveEventStatus returns the status to store for an event, or false when
// the pair is not allowed.
func ResolveEventStatus(et EventType, st ShipmentStatus) (ShipmentStatus, bool) {
	allowed, ok := eventStatusRules[et]
	if !ok {
		return "", false
	}
	if st == "" {
		return allowed[0], true
	}
	if slices.Contains(allowed, st) {
		return st, true
	}
	return "", false
}
