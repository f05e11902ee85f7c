package httpapi

import (
	"net/http"

	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/go-chi/chi/v5"
)

func (s *Server) createShipment(w http.ResponseWriter, r *http.Request) {
	var req createShipmentRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sh, err := s.shipments.Create(r.Context(), partnerFrom(r.Context()), req.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "Shipment created successfully", map[string]any{"shipment": sh})
}

func (s *Server) getShipment(w http.ResponseWriter, r *http.Request) {
	sh, err := s.shipments.GetPublic(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", map[string]any{"shipment": sh})
}

func (s *Server) shipmentEvents(w http.ResponseWriter, r *http.Request) {
	h, err := s.shipments.ListEvents(r.Context(), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", h)
}

func (s *Server) appendEvent(w http.ResponseWriter, r *http.Request) {
	var req appendEventRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sh, ev, err := s.shipments.AppendEvent(r.Context(), partnerFrom(r.Context()), chi.URLParam(r, "trackingNumber"), req.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Tracking event added successfully", map[string]any{
		"shipment":    sh,
		"latestEvent": ev,
	})
}

func (s *Server) updateShipment(w http.ResponseWriter, r *http.Request) {
	var req updateShipmentRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sh, err := s.shipments.Update(r.Context(), partnerFrom(r.Context()), chi.URLParam(r, "trackingNumber"), req.patch())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Shipment updated successfully", map[string]any{"shipment": sh})
}

func (s *Server) listShipments(w http.ResponseWriter, r *http.Request) {
	pq, err := parsePaging(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	f := models.ShipmentFilter{From: from, To: to, Page: pq.page, Limit: pq.limit}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := models.ShipmentStatus(raw)
		f.Status = &st
	}
	page, err := s.shipments.ListForPartner(r.Context(), partnerFrom(r.Context()), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", page)
}

func (s *Server) shipmentStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	stats, err := s.shipments.Stats(r.Context(), partnerFrom(r.Context()), from, to)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", stats)
}

func (s *Server) shipmentsByEmail(w http.ResponseWriter, r *http.Request) {
	list, err := s.shipments.ListByRecipientEmail(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", map[string]any{"shipments": list})
}
