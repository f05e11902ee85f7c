package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShipment_AppendEvent_LastAppendedWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &Shipment{CurrentStatus: StatusPending}

	seq := []TrackingEvent{
		{EventID: "1", EventType: EventShipmentCreated, Status: StatusPending, Timestamp: base},
		{EventID: "2", EventType: EventPackagePickedUp, Status: StatusInTransit, Timestamp: base.Add(time.Hour)},
		// late-arriving event with an older timestamp still drives the status
		{EventID: "3", EventType: EventException, Status: StatusException, Timestamp: base.Add(-time.Hour)},
	}
	for i, ev := range seq {
		s.AppendEvent(ev)
		require.Equal(t, ev.Status, s.CurrentStatus)
		require.Len(t, s.Events, i+1)
	}
	last, ok := s.LatestEvent()
	require.True(t, ok)
	require.Equal(t, "3", last.EventID)
}

func TestShipment_AppendEvent_DeliveryDateFirstWriteWins(t *testing.T) {
	first := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := &Shipment{}

	s.AppendEvent(TrackingEvent{EventType: EventDelivered, Status: StatusDelivered, Timestamp: first})
	require.NotNil(t, s.ActualDeliveryDate)
	require.True(t, first.Equal(*s.ActualDeliveryDate))

	s.AppendEvent(TrackingEvent{EventType: EventDelivered, Status: StatusDelivered, Timestamp: first.Add(24 * time.Hour)})
	require.True(t, first.Equal(*s.ActualDeliveryDate))
	require.Len(t, s.Events, 2)
}

func TestShipment_EventsNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &Shipment{}
	s.AppendEvent(TrackingEvent{EventID: "a", Timestamp: base})
	s.AppendEvent(TrackingEvent{EventID: "b", Timestamp: base.Add(2 * time.Hour)})
	s.AppendEvent(TrackingEvent{EventID: "c", Timestamp: base.Add(time.Hour)})
	s.AppendEvent(TrackingEvent{EventID: "d", Timestamp: base.Add(2 * time.Hour)})

	var ids []string
	for _, ev := range s.EventsNewestFirst() {
		ids = append(ids, ev.EventID)
	}
	require.Equal(t, []string{"d", "b", "c", "a"}, ids)
	// source order untouched
	require.Equal(t, "a", s.Events[0].EventID)
}

func TestShipment_PublicAndClone(t *testing.T) {
	eta := time.Now().UTC()
	s := &Shipment{
		PartnerID:             "p1",
		Partner:               &PartnerSummary{CompanyName: "Acme", PartnerType: PartnerCourier},
		EstimatedDeliveryDate: &eta,
		Package:               Package{Weight: &Weight{Value: 1}},
		Events:                []TrackingEvent{{EventID: "1", Location: &Location{City: "Austin"}}},
		Metadata:              map[string]string{"k": "v"},
	}

	pub := s.Public()
	require.Empty(t, pub.PartnerID)
	require.Equal(t, "Acme", pub.Partner.CompanyName)
	require.Equal(t, "p1", s.PartnerID)

	c := s.Clone()
	c.Events[0].Location.City = "Dallas"
	c.Package.Weight.Value = 5
	c.Metadata["k"] = "changed"
	require.Equal(t, "Austin", s.Events[0].Location.City)
	require.Equal(t, float64(1), s.Package.Weight.Value)
	require.Equal(t, "v", s.Metadata["k"])
}

func TestShipmentPatch_Apply(t *testing.T) {
	s := &Shipment{TrackingNumber: "PT1", PartnerID: "p1", CurrentStatus: StatusInTransit, IsActive: true}
	svc := ServiceExpress
	inactive := false
	now := time.Now().UTC()

	ShipmentPatch{ServiceType: &svc, IsActive: &inactive, Package: &Package{Weight: &Weight{Value: 2}}}.Apply(s, now)

	require.Equal(t, ServiceExpress, s.ServiceType)
	require.False(t, s.IsActive)
	require.Equal(t, "kg", s.Package.Weight.Unit)
	require.Equal(t, "PT1", s.TrackingNumber)
	require.Equal(t, StatusInTransit, s.CurrentStatus)
	require.Equal(t, now, s.UpdatedAt)
	require.True(t, ShipmentPatch{}.Empty())
}

func TestResolveEventStatus(t *testing.T) {
	st, ok := ResolveEventStatus(EventDelivered, "")
	require.True(t, ok)
	require.Equal(t, StatusDelivered, st)

	_, ok = ResolveEventStatus(EventDelivered, StatusPending)
	require.False(t, ok)

	st, ok = ResolveEventStatus(EventDeliveryAttempted, StatusException)
	require.True(t, ok)
	require.Equal(t, StatusException, st)

	_, ok = ResolveEventStatus(EventType("teleported"), StatusPending)
	require.False(t, ok)

	require.Equal(t, []ShipmentStatus{StatusInTransit, StatusPending}, AllowedStatuses(EventPackagePickedUp))
}

func TestNewPage(t *testing.T) {
	p := NewPage([]int{1, 2}, 5, 1, 2)
	require.Equal(t, 3, p.TotalPages)
	require.True(t, p.HasNextPage)
	require.False(t, p.HasPrevPage)

	empty := NewPage[int](nil, 0, 1, 10)
	require.NotNil(t, empty.Docs)
	require.Equal(t, 0, empty.TotalPages)

	page, limit := NormalizePaging(0, 0)
	require.Equal(t, 1, page)
	require.Equal(t, 10, limit)
	_, limit = NormalizePaging(2, 500)
	require.Equal(t, 100, limit)
}

func TestNewPeriod(t *testing.T) {
	require.Equal(t, Period{StartDate: "all time", EndDate: "present"}, NewPeriod(nil, nil))
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "2026-01-01T00:00:00Z", NewPeriod(&from, nil).StartDate)
}
