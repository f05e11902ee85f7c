package shipments

import (
	"strings"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/BearBump/ParcelTrack/internal/validation"
)

func trimParty(p *models.Party) {
	p.Name = strings.TrimSpace(p.Name)
	p.Address.Street = strings.TrimSpace(p.Address.Street)
	p.Address.City = strings.TrimSpace(p.Address.City)
	p.Address.State = strings.TrimSpace(p.Address.State)
	p.Address.ZipCode = strings.TrimSpace(p.Address.ZipCode)
	p.Address.Country = strings.TrimSpace(p.Address.Country)
}

func validatePatch(p *models.ShipmentPatch) error {
	if p.Sender != nil {
		trimParty(p.Sender)
	}
	if p.Recipient != nil {
		trimParty(p.Recipient)
	}
	return validation.Struct(p)
}

// validateEvent resolves the stored status through the event rules table.
func validateEvent(in AppendEventInput) (models.ShipmentStatus, []apperr.FieldError) {
	var out []apperr.FieldError
	if !in.EventType.Valid() {
		out = append(out, apperr.FieldError{Field: "eventType", Message: "eventType is not a known event type"})
	}
	if in.Status != "" && !in.Status.Valid() {
		out = append(out, apperr.FieldError{Field: "status", Message: "status must be one of " + joinStatuses(models.ShipmentStatuses)})
	}
	if strings.TrimSpace(in.Description) == "" {
		out = append(out, apperr.FieldError{Field: "description", Message: "description is required"})
	}
	if len(out) > 0 {
		return "", out
	}
	status, ok := models.ResolveEventStatus(in.EventType, in.Status)
	if !ok {
		return "", []apperr.FieldError{{
			Field:   "status",
			Message: "status " + string(in.Status) + " is not allowed for " + string(in.EventType) + " (allowed: " + joinStatuses(models.AllowedStatuses(in.EventType)) + ")",
		}}
	}
	return status, nil
}

func joinStatuses(ss []models.ShipmentStatus) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
