package memparcel

import (
	"context"
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/models"
)

func (s *Storage) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.users {
		if r.u.Email == lower(u.Email) {
			return apperr.Conflict("User with this email already exists")
		}
	}
	c := *u
	c.Email = lower(u.Email)
	s.users[c.ID] = &userRec{seq: s.nextSeq(), u: &c}
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	return cloneUser(r.u), nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.users {
		if r.u.Email == lower(email) {
			return cloneUser(r.u), nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (s *Storage) UpdateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.users[u.ID]
	if !ok {
		return apperr.NotFound("User")
	}
	r.u = cloneUser(u)
	return nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	if u.Address != nil {
		a := *u.Address
		c.Address = &a
	}
	return &c
}

func (s *Storage) CreatePartner(ctx context.Context, p *models.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.partners {
		if r.p.ContactEmail == lower(p.ContactEmail) {
			return apperr.Conflict("Partner with this email already exists")
		}
		if r.p.APIKey == p.APIKey {
			return apperr.Conflict("API key already exists")
		}
	}
	c := p.Clone()
	c.ContactEmail = lower(p.ContactEmail)
	s.partners[c.ID] = &partnerRec{seq: s.nextSeq(), p: c}
	return nil
}

func (s *Storage) GetPartnerByID(ctx context.Context, id string) (*models.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.partners[id]
	if !ok {
		return nil, apperr.NotFound("Partner")
	}
	return r.p.Clone(), nil
}

func (s *Storage) GetPartnerByAPIKey(ctx context.Context, apiKey string) (*models.Partner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.partners {
		if r.p.APIKey == apiKey {
			return r.p.Clone(), nil
		}
	}
	return nil, apperr.NotFound("Partner")
}

func (s *Storage) UpdatePartner(ctx context.Context, p *models.Partner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.partners[p.ID]
	if !ok {
		return apperr.NotFound("Partner")
	}
	// credentials only change through ReplacePartnerCredentials
	c := p.Clone()
	c.APIKey = r.p.APIKey
	c.APISecretHash = r.p.APISecretHash
	r.p = c
	return nil
}

func (s *Storage) ReplacePartnerCredentials(ctx context.Context, id, apiKey, secretHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.partners[id]
	if !ok {
		return apperr.NotFound("Partner")
	}
	for pid, other := range s.partners {
		if pid != id && other.p.APIKey == apiKey {
			return apperr.Conflict("API key already exists")
		}
	}
	r.p.APIKey = apiKey
	r.p.APISecretHash = secretHash
	r.p.UpdatedAt = now
	return nil
}

func (s *Storage) ListPartners(ctx context.Context, f models.PartnerFilter) (models.Page[*models.Partner], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page, limit := models.NormalizePaging(f.Page, f.Limit)
	var recs []*partnerRec
	for _, r := range s.partners {
		if f.IsActive != nil && r.p.IsActive != *f.IsActive {
			continue
		}
		if f.PartnerType != nil && r.p.PartnerType != *f.PartnerType {
			continue
		}
		recs = append(recs, r)
	}
	newestFirst(recs,
		func(r *partnerRec) time.Time { return r.p.CreatedAt },
		func(r *partnerRec) int64 { return r.seq })

	out := make([]*models.Partner, 0, limit)
	for _, r := range paginate(recs, page, limit) {
		out = append(out, r.p.Clone())
	}
	return models.NewPage(out, len(recs), page, limit), nil
}
