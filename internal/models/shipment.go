package models

import (
	"maps"
	"slices"
	"sort"
	"time"
)

type ShipmentStatus string

const (
	StatusPending   ShipmentStatus = "pending"
	StatusInTransit ShipmentStatus = "in_transit"
	StatusDelivered ShipmentStatus = "delivered"
	StatusException ShipmentStatus = "exception"
	StatusReturned  ShipmentStatus = "returned"
)

var ShipmentStatuses = []ShipmentStatus{StatusPending, StatusInTransit, StatusDelivered, StatusException, StatusReturned}

func (s ShipmentStatus) Valid() bool { return slices.Contains(ShipmentStatuses, s) }

type EventType string

const (
	EventShipmentCreated   EventType = "shipment_created"
	EventPackagePickedUp   EventType = "package_picked_up"
	EventInTransit         EventType = "in_transit"
	EventOutForDelivery    EventType = "out_for_delivery"
	EventDelivered         EventType = "delivered"
	EventDeliveryAttempted EventType = "delivery_attempted"
	EventException         EventType = "exception"
	EventReturnedToSender  EventType = "returned_to_sender"
	EventLost              EventType = "lost"
	EventDamaged           EventType = "damaged"
)

func (e EventType) Valid() bool {
	_, ok := eventStatusRules[e]
	return ok
}

type ServiceType string

const (
	ServiceStandard  ServiceType = "standard"
	ServiceExpress   ServiceType = "express"
	ServiceOvernight ServiceType = "overnight"
	ServiceSameDay   ServiceType = "same_day"
)

type Address struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zipCode" validate:"required"`
	Country string `json:"country" validate:"required"`
}

type Party struct {
	Name    string  `json:"name" validate:"required"`
	Email   string  `json:"email,omitempty"`
	Phone   string  `json:"phone,omitempty"`
	Address Address `json:"address"`
}

type Weight struct {
	Value float64 `json:"value" validate:"gte=0"`
	Unit  string  `json:"unit" validate:"omitempty,oneof=kg lb"`
}

type Dimensions struct {
	Length float64 `json:"length" validate:"gte=0"`
	Width  float64 `json:"width" validate:"gte=0"`
	Height float64 `json:"height" validate:"gte=0"`
	Unit   string  `json:"unit" validate:"omitempty,oneof=cm in"`
}

type DeclaredValue struct {
	Amount   float64 `json:"amount" validate:"gte=0"`
	Currency string  `json:"currency"`
}

type Package struct {
	Weight      *Weight        `json:"weight,omitempty"`
	Dimensions  *Dimensions    `json:"dimensions,omitempty"`
	Value       *DeclaredValue `json:"value,omitempty"`
	Description string         `json:"description,omitempty"`
	Fragile     bool           `json:"fragile"`
}

func (p *Package) ApplyDefaults() {
	if p.Weight != nil && p.Weight.Unit == "" {
		p.Weight.Unit = "kg"
	}
	if p.Dimensions != nil && p.Dimensions.Unit == "" {
		p.Dimensions.Unit = "cm"
	}
	if p.Value != nil && p.Value.Currency == "" {
		p.Value.Currency = "USD"
	}
}

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Location struct {
	Street      string       `json:"street,omitempty"`
	City        string       `json:"city,omitempty"`
	State       string       `json:"state,omitempty"`
	ZipCode     string       `json:"zipCode,omitempty"`
	Country     string       `json:"country,omitempty"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Actor records who appended an event. Audit only.
type Actor struct {
	PartnerID string `json:"partnerId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

type TrackingEvent struct {
	EventID     string            `json:"eventId"`
	EventType   EventType         `json:"eventType"`
	Status      ShipmentStatus    `json:"status"`
	Description string            `json:"description"`
	Location    *Location         `json:"location,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	CreatedBy   Actor             `json:"createdBy"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

type PartnerSummary struct {
	CompanyName string      `json:"companyName"`
	PartnerType PartnerType `json:"partnerType"`
}

type Shipment struct {
	ID                    string            `json:"id"`
	TrackingNumber        string            `json:"trackingNumber"`
	PartnerTrackingNumber string            `json:"partnerTrackingNumber,omitempty"`
	PartnerID             string            `json:"partnerId,omitempty"`
	Partner               *PartnerSummary   `json:"partner,omitempty"`
	Sender                Party             `json:"sender"`
	Recipient             Party             `json:"recipient"`
	Package               Package           `json:"package"`
	ServiceType           ServiceType       `json:"serviceType"`
	CurrentStatus         ShipmentStatus    `json:"currentStatus"`
	EstimatedDeliveryDate *time.Time        `json:"estimatedDeliveryDate,omitempty"`
	ActualDeliveryDate    *time.Time        `json:"actualDeliveryDate,omitempty"`
	Events                []TrackingEvent   `json:"events"`
	IsActive              bool              `json:"isActive"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

// AppendEvent never reorders: the last appended event drives CurrentStatus
// even when its timestamp is older. ActualDeliveryDate is first-write-wins.
func (s *Shipment) AppendEvent(ev TrackingEvent) {
	s.Events = append(s.Events, ev)
	s.CurrentStatus = ev.Status
	if ev.EventType == EventDelivered && s.ActualDeliveryDate == nil {
		ts := ev.Timestamp
		s.ActualDeliveryDate = &ts
	}
	if ev.CreatedAt.After(s.UpdatedAt) {
		s.UpdatedAt = ev.CreatedAt
	}
}

func (s *Shipment) LatestEvent() (TrackingEvent, bool) {
	if len(s.Events) == 0 {
		return TrackingEvent{}, false
	}
	return s.Events[len(s.Events)-1], true
}

// EventsNewestFirst orders by timestamp descending; equal timestamps keep
// the later-appended event first.
func (s *Shipment) EventsNewestFirst() []TrackingEvent {
	out := make([]TrackingEvent, len(s.Events))
	for i, ev := range s.Events {
		out[len(s.Events)-1-i] = ev
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// Public strips the owner reference; only the partner summary stays visible.
func (s *Shipment) Public() *Shipment {
	c := s.Clone()
	c.PartnerID = ""
	return c
}

func (s *Shipment) Clone() *Shipment {
	if s == nil {
		return nil
	}
	c := *s
	if s.Partner != nil {
		p := *s.Partner
		c.Partner = &p
	}
	c.Package = s.Package.clone()
	c.EstimatedDeliveryDate = cloneTime(s.EstimatedDeliveryDate)
	c.ActualDeliveryDate = cloneTime(s.ActualDeliveryDate)
	c.Metadata = maps.Clone(s.Metadata)
	c.Events = make([]TrackingEvent, len(s.Events))
	for i, ev := range s.Events {
		c.Events[i] = ev.Clone()
	}
	return &c
}

func (p Package) clone() Package {
	c := p
	if p.Weight != nil {
		w := *p.Weight
		c.Weight = &w
	}
	if p.Dimensions != nil {
		d := *p.Dimensions
		c.Dimensions = &d
	}
	if p.Value != nil {
		v := *p.Value
		c.Value = &v
	}
	return c
}

func (e TrackingEvent) Clone() TrackingEvent {
	c := e
	if e.Location != nil {
		l := *e.Location
		if e.Location.Coordinates != nil {
			co := *e.Location.Coordinates
			l.Coordinates = &co
		}
		c.Location = &l
	}
	c.Metadata = maps.Clone(e.Metadata)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ShipmentPatch lists the only fields an owner may change. Tracking number,
// owner, events and current status have no slot here on purpose.
type ShipmentPatch struct {
	PartnerTrackingNumber *string           `json:"partnerTrackingNumber"`
	Sender                *Party            `json:"sender"`
	Recipient             *Party            `json:"recipient"`
	Package               *Package          `json:"package"`
	ServiceType           *ServiceType      `json:"serviceType" validate:"omitempty,oneof=standard express overnight same_day"`
	EstimatedDeliveryDate *time.Time        `json:"estimatedDeliveryDate"`
	Metadata              map[string]string `json:"metadata"`
	IsActive              *bool             `json:"isActive"`
}

func (p ShipmentPatch) Empty() bool {
	return p.PartnerTrackingNumber == nil && p.Sender == nil && p.Recipient == nil &&
		p.Package == nil && p.ServiceType == nil && p.EstimatedDeliveryDate == nil &&
		p.Metadata == nil && p.IsActive == nil
}

func (p ShipmentPatch) Apply(s *Shipment, now time.Time) {
	if p.PartnerTrackingNumber != nil {
		s.PartnerTrackingNumber = *p.PartnerTrackingNumber
	}
	if p.Sender != nil {
		s.Sender = *p.Sender
	}
	if p.Recipient != nil {
		s.Recipient = *p.Recipient
	}
	if p.Package != nil {
		s.Package = p.Package.clone()
		s.Package.ApplyDefaults()
	}
	if p.ServiceType != nil {
		s.ServiceType = *p.ServiceType
	}
	if p.EstimatedDeliveryDate != nil {
		s.EstimatedDeliveryDate = cloneTime(p.EstimatedDeliveryDate)
	}
	if p.Metadata != nil {
		s.Metadata = maps.Clone(p.Metadata)
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
	s.UpdatedAt = now
}

type ShipmentFilter struct {
	Status *ShipmentStatus
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

type Period struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// NewPeriod echoes the requested range, "all time"/"present" for open ends.
func NewPeriod(from, to *time.Time) Period {
	p := Period{StartDate: "all time", EndDate: "present"}
	if from != nil {
		p.StartDate = from.UTC().Format(time.RFC3339)
	}
	if to != nil {
		p.EndDate = to.UTC().Format(time.RFC3339)
	}
	return p
}

type ShipmentStats struct {
	TotalShipments  int                    `json:"totalShipments"`
	StatusBreakdown map[ShipmentStatus]int `json:"statusBreakdown"`
	DeliveryRate    float64                `json:"deliveryRate"`
	Period          Period                 `json:"period"`
}
