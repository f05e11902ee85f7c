package pgparcel

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/pkg/errors"
)

const userCols = `id, email, password_hash, first_name, last_name, phone, address, role, preferences, is_active, created_at, updated_at`

func scanUser(r rowScanner) (*models.User, error) {
	var u models.User
	var role string
	if err := r.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone,
		&u.Address, &role, &u.Preferences, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

func (s *Storage) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO users (`+userCols+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`, u.ID, strings.ToLower(u.Email), u.PasswordHash, u.FirstName, u.LastName, u.Phone,
		u.Address, string(u.Role), u.Preferences, u.IsActive, u.CreatedAt, u.UpdatedAt)
	return dbErr(err, "insert user", "User", "User with this email already exists")
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, dbErr(err, "select user", "User", "")
	}
	return u, nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, strings.ToLower(email)))
	if err != nil {
		return nil, dbErr(err, "select user by email", "User", "")
	}
	return u, nil
}

func (s *Storage) UpdateUser(ctx context.Context, u *models.User) error {
	tag, err := s.db.Exec(ctx, `
UPDATE users SET
  first_name = $2, last_name = $3, phone = $4, address = $5,
  preferences = $6, is_active = $7, updated_at = $8
WHERE id = $1
`, u.ID, u.FirstName, u.LastName, u.Phone, u.Address, u.Preferences, u.IsActive, u.UpdatedAt)
	if err != nil {
		return dbErr(err, "update user", "User", "")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}
	return nil
}

const partnerCols = `id, company_name, contact_email, contact_phone, partner_type, address, business_registration,
  api_key, api_secret_hash, is_active, rate_limit, webhook_url, service_areas, created_at, updated_at`

func scanPartner(r rowScanner) (*models.Partner, error) {
	var p models.Partner
	var pt string
	if err := r.Scan(
		&p.ID, &p.CompanyName, &p.ContactEmail, &p.ContactPhone, &pt, &p.Address, &p.BusinessRegistration,
		&p.APIKey, &p.APISecretHash, &p.IsActive, &p.RateLimit, &p.WebhookURL, &p.ServiceAreas,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.PartnerType = models.PartnerType(pt)
	if p.ServiceAreas == nil {
		p.ServiceAreas = []models.ServiceArea{}
	}
	return &p, nil
}

func (s *Storage) CreatePartner(ctx context.Context, p *models.Partner) error {
	areas := p.ServiceAreas
	if areas == nil {
		areas = []models.ServiceArea{}
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO partners (`+partnerCols+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`, p.ID, p.CompanyName, strings.ToLower(p.ContactEmail), p.ContactPhone, string(p.PartnerType),
		p.Address, p.BusinessRegistration, p.APIKey, p.APISecretHash, p.IsActive, p.RateLimit,
		p.WebhookURL, areas, p.CreatedAt, p.UpdatedAt)
	return dbErr(err, "insert partner", "Partner", "Partner with this email already exists")
}

func (s *Storage) GetPartnerByID(ctx context.Context, id string) (*models.Partner, error) {
	p, err := scanPartner(s.db.QueryRow(ctx, `SELECT `+partnerCols+` FROM partners WHERE id = $1`, id))
	if err != nil {
		return nil, dbErr(err, "select partner", "Partner", "")
	}
	return p, nil
}

func (s *Storage) GetPartnerByAPIKey(ctx context.Context, apiKey string) (*models.Partner, error) {
	p, err := scanPartner(s.db.QueryRow(ctx, `SELECT `+partnerCols+` FROM partners WHERE api_key = $1`, apiKey))
	if err != nil {
		return nil, dbErr(err, "select partner by api key", "Partner", "")
	}
	return p, nil
}

// UpdatePartner writes the profile; api_key/api_secret_hash are untouched.
func (s *Storage) UpdatePartner(ctx context.Context, p *models.Partner) error {
	areas := p.ServiceAreas
	if areas == nil {
		areas = []models.ServiceArea{}
	}
	tag, err := s.db.Exec(ctx, `
UPDATE partners SET
  company_name = $2, contact_phone = $3, partner_type = $4, address = $5,
  business_registration = $6, is_active = $7, rate_limit = $8, webhook_url = $9,
  service_areas = $10, updated_at = $11
WHERE id = $1
`, p.ID, p.CompanyName, p.ContactPhone, string(p.PartnerType), p.Address, p.BusinessRegistration,
		p.IsActive, p.RateLimit, p.WebhookURL, areas, p.UpdatedAt)
	if err != nil {
		return dbErr(err, "update partner", "Partner", "")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Partner")
	}
	return nil
}

// ReplacePartnerCredentials swaps key and secret in one statement so the
// old pair stops working at the same instant the new one starts.
func (s *Storage) ReplacePartnerCredentials(ctx context.Context, id, apiKey, secretHash string, now time.Time) error {
	tag, err := s.db.Exec(ctx, `
UPDATE partners SET api_key = $2, api_secret_hash = $3, updated_at = $4 WHERE id = $1
`, id, apiKey, secretHash, now.UTC())
	if err != nil {
		return dbErr(err, "replace partner credentials", "Partner", "API key already exists")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Partner")
	}
	return nil
}

func (s *Storage) ListPartners(ctx context.Context, f models.PartnerFilter) (models.Page[*models.Partner], error) {
	page, limit := models.NormalizePaging(f.Page, f.Limit)
	where := `WHERE ($1::boolean IS NULL OR is_active = $1) AND ($2::text IS NULL OR partner_type = $2)`
	args := []any{f.IsActive, strPtr(f.PartnerType)}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM partners `+where, args...).Scan(&total); err != nil {
		return models.Page[*models.Partner]{}, dbErr(err, "count partners", "Partner", "")
	}

	rows, err := s.db.Query(ctx, `
SELECT `+partnerCols+` FROM partners `+where+`
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4
`, append(args, limit, pageOffset(page, limit))...)
	if err != nil {
		return models.Page[*models.Partner]{}, dbErr(err, "select partners", "Partner", "")
	}
	defer rows.Close()

	out := make([]*models.Partner, 0, limit)
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return models.Page[*models.Partner]{}, errors.Wrap(err, "scan partner")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return models.Page[*models.Partner]{}, errors.Wrap(rows.Err(), "rows")
	}
	return models.NewPage(out, total, page, limit), nil
}
