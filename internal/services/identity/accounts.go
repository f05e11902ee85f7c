package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/auth"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/BearBump/ParcelTrack/internal/validation"
)

func (s *Service) UpdateUserProfile(ctx context.Context, user *models.User, patch models.UserPatch) (*models.User, error) {
	u, err := s.repo.GetUserByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if patch.FirstName != nil {
		if strings.TrimSpace(*patch.FirstName) == "" {
			return nil, apperr.Validation("", apperr.FieldError{Field: "firstName", Message: "firstName is required"})
		}
		u.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		if strings.TrimSpace(*patch.LastName) == "" {
			return nil, apperr.Validation("", apperr.FieldError{Field: "lastName", Message: "lastName is required"})
		}
		u.LastName = strings.TrimSpace(*patch.LastName)
	}
	if patch.Phone != nil {
		u.Phone = *patch.Phone
	}
	if patch.Address != nil {
		a := *patch.Address
		u.Address = &a
	}
	u.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

type PreferencesPatch struct {
	EmailNotifications *bool `json:"emailNotifications,omitempty"`
	SMSNotifications   *bool `json:"smsNotifications,omitempty"`
	PushNotifications  *bool `json:"pushNotifications,omitempty"`
}

func (s *Service) GetPreferences(ctx context.Context, user *models.User) (models.Preferences, error) {
	u, err := s.repo.GetUserByID(ctx, user.ID)
	if err != nil {
		return models.Preferences{}, err
	}
	return u.Preferences, nil
}

// UpdatePreferences merges: unset flags keep their stored value.
func (s *Service) UpdatePreferences(ctx context.Context, user *models.User, patch PreferencesPatch) (models.Preferences, error) {
	u, err := s.repo.GetUserByID(ctx, user.ID)
	if err != nil {
		return models.Preferences{}, err
	}
	if patch.EmailNotifications != nil {
		u.Preferences.EmailNotifications = *patch.EmailNotifications
	}
	if patch.SMSNotifications != nil {
		u.Preferences.SMSNotifications = *patch.SMSNotifications
	}
	if patch.PushNotifications != nil {
		u.Preferences.PushNotifications = *patch.PushNotifications
	}
	u.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return models.Preferences{}, err
	}
	return u.Preferences, nil
}

// DeleteUser deactivates the account. Shipments reference recipients by
// email only, so nothing cascades.
func (s *Service) DeleteUser(ctx context.Context, id auth.Identity) error {
	c, ok := id.(auth.CustomerIdentity)
	if !ok {
		return apperr.Forbidden("Insufficient permissions")
	}
	u, err := s.repo.GetUserByID(ctx, c.User.ID)
	if err != nil {
		return err
	}
	u.IsActive = false
	u.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return err
	}
	slog.Info("user account deleted", "user_id", u.ID)
	return nil
}

func (s *Service) UpdatePartnerProfile(ctx context.Context, partner *models.Partner, patch models.PartnerPatch) (*models.Partner, error) {
	p, err := s.repo.GetPartnerByID(ctx, partner.ID)
	if err != nil {
		return nil, err
	}
	if patch.CompanyName != nil {
		if strings.TrimSpace(*patch.CompanyName) == "" {
			return nil, apperr.Validation("", apperr.FieldError{Field: "companyName", Message: "companyName is required"})
		}
		p.CompanyName = strings.TrimSpace(*patch.CompanyName)
	}
	if patch.ContactPhone != nil {
		p.ContactPhone = *patch.ContactPhone
	}
	if patch.PartnerType != nil {
		if !patch.PartnerType.Valid() {
			return nil, apperr.Validation("", apperr.FieldError{Field: "partnerType", Message: "partnerType must be one of [shipping, logistics, ecommerce, courier]"})
		}
		p.PartnerType = *patch.PartnerType
	}
	if patch.Address != nil {
		a := *patch.Address
		p.Address = &a
	}
	if patch.BusinessRegistration != nil {
		b := *patch.BusinessRegistration
		p.BusinessRegistration = &b
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdatePartner(ctx, p); err != nil {
		return nil, err
	}
	slog.Info("partner profile updated", "partner_id", p.ID)
	return p, nil
}

// RegenerateCredentials replaces key and secret in one write; the old pair
// stops working immediately.
func (s *Service) RegenerateCredentials(ctx context.Context, partner *models.Partner) (auth.APICredentials, error) {
	creds, err := s.newCredentials()
	if err != nil {
		return auth.APICredentials{}, err
	}
	hash, err := s.hasher.Hash(creds.APISecret)
	if err != nil {
		return auth.APICredentials{}, err
	}
	if err := s.repo.ReplacePartnerCredentials(ctx, partner.ID, creds.APIKey, hash, s.now().UTC()); err != nil {
		return auth.APICredentials{}, err
	}
	slog.Info("api credentials regenerated", "partner_id", partner.ID)
	return creds, nil
}

func (s *Service) ServiceAreas(ctx context.Context, partner *models.Partner) ([]models.ServiceArea, error) {
	p, err := s.repo.GetPartnerByID(ctx, partner.ID)
	if err != nil {
		return nil, err
	}
	return p.ServiceAreas, nil
}

func (s *Service) UpdateServiceAreas(ctx context.Context, partner *models.Partner, areas []models.ServiceArea) ([]models.ServiceArea, error) {
	for i, a := range areas {
		if strings.TrimSpace(a.Country) == "" {
			return nil, apperr.Validation("", apperr.FieldError{Field: fmt.Sprintf("serviceAreas[%d].country", i), Message: "country is required"})
		}
	}
	p, err := s.repo.GetPartnerByID(ctx, partner.ID)
	if err != nil {
		return nil, err
	}
	p.ServiceAreas = append([]models.ServiceArea{}, areas...)
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdatePartner(ctx, p); err != nil {
		return nil, err
	}
	return p.ServiceAreas, nil
}

// UpdateWebhook sets or, with an empty url, clears the webhook target.
func (s *Service) UpdateWebhook(ctx context.Context, partner *models.Partner, url string) (*models.Partner, error) {
	url = strings.TrimSpace(url)
	if err := validation.Var("webhookUrl", url, "omitempty,url"); err != nil {
		return nil, err
	}
	p, err := s.repo.GetPartnerByID(ctx, partner.ID)
	if err != nil {
		return nil, err
	}
	p.WebhookURL = url
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdatePartner(ctx, p); err != nil {
		return nil, err
	}
	slog.Info("webhook updated", "partner_id", p.ID, "enabled", url != "")
	return p, nil
}

func (s *Service) RateLimits(ctx context.Context, partner *models.Partner) (models.RateLimit, error) {
	p, err := s.repo.GetPartnerByID(ctx, partner.ID)
	if err != nil {
		return models.RateLimit{}, err
	}
	return p.RateLimit, nil
}

func (s *Service) ListPartners(ctx context.Context, f models.PartnerFilter) (models.Page[*models.Partner], error) {
	if f.PartnerType != nil && !f.PartnerType.Valid() {
		return models.Page[*models.Partner]{}, apperr.Validation("", apperr.FieldError{Field: "partnerType", Message: "partnerType must be one of [shipping, logistics, ecommerce, courier]"})
	}
	return s.repo.ListPartners(ctx, f)
}

func (s *Service) SetPartnerActive(ctx context.Context, id string, active bool) (*models.Partner, error) {
	p, err := s.repo.GetPartnerByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.IsActive = active
	p.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdatePartner(ctx, p); err != nil {
		return nil, err
	}
	slog.Info("partner status changed", "partner_id", p.ID, "active", active)
	return p, nil
}
