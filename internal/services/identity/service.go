package identity

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/auth"
	"github.com/BearBump/ParcelTrack/internal/models"
	"github.com/BearBump/ParcelTrack/internal/validation"
	"github.com/google/uuid"
)

type Repository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error

	CreatePartner(ctx context.Context, p *models.Partner) error
	GetPartnerByID(ctx context.Context, id string) (*models.Partner, error)
	GetPartnerByAPIKey(ctx context.Context, apiKey string) (*models.Partner, error)
	UpdatePartner(ctx context.Context, p *models.Partner) error
	ReplacePartnerCredentials(ctx context.Context, id, apiKey, secretHash string, now time.Time) error
	ListPartners(ctx context.Context, f models.PartnerFilter) (models.Page[*models.Partner], error)
}

type Service struct {
	repo   Repository
	hasher *auth.Hasher
	authn  *auth.Authenticator

	now            func() time.Time
	newID          func() string
	newCredentials func() (auth.APICredentials, error)
}

func New(repo Repository, hasher *auth.Hasher, authn *auth.Authenticator) *Service {
	return &Service{
		repo:           repo,
		hasher:         hasher,
		authn:          authn,
		now:            time.Now,
		newID:          uuid.NewString,
		newCredentials: auth.NewAPICredentials,
	}
}

type RegisterUserInput struct {
	Email     string          `json:"email" validate:"required,email"`
	Password  string          `json:"password" validate:"required,min=6"`
	FirstName string          `json:"firstName" validate:"required"`
	LastName  string          `json:"lastName" validate:"required"`
	Phone     string          `json:"phone,omitempty"`
	Address   *models.Address `json:"address,omitempty" validate:"-"`
}

type Session[T any] struct {
	Subject T
	Token   string
}

func (s *Service) RegisterUser(ctx context.Context, in RegisterUserInput) (Session[*models.User], error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := validation.Struct(in); err != nil {
		return Session[*models.User]{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session[*models.User]{}, err
	}

	now := s.now().UTC()
	u := &models.User{
		ID:           s.newID(),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Phone:        in.Phone,
		Address:      in.Address,
		Role:         models.RoleCustomer,
		Preferences:  models.DefaultPreferences(),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return Session[*models.User]{}, apperr.Conflict("User already exists with this email")
		}
		return Session[*models.User]{}, err
	}
	token, err := s.authn.IssueFor(auth.IdentityForUser(u))
	if err != nil {
		return Session[*models.User]{}, err
	}
	slog.Info("user registered", "user_id", u.ID)
	return Session[*models.User]{Subject: u, Token: token}, nil
}

// LoginUser answers unknown email and wrong password identically.
func (s *Service) LoginUser(ctx context.Context, email, password string) (Session[*models.User], error) {
	invalid := apperr.Auth("Invalid email or password")
	if email == "" || password == "" {
		return Session[*models.User]{}, invalid
	}
	u, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Session[*models.User]{}, invalid
		}
		return Session[*models.User]{}, err
	}
	if !s.hasher.Compare(u.PasswordHash, password) || !u.IsActive {
		return Session[*models.User]{}, invalid
	}
	token, err := s.authn.IssueFor(auth.IdentityForUser(u))
	if err != nil {
		return Session[*models.User]{}, err
	}
	return Session[*models.User]{Subject: u, Token: token}, nil
}

type RegisterPartnerInput struct {
	CompanyName          string                       `json:"companyName" validate:"required"`
	ContactEmail         string                       `json:"contactEmail" validate:"required,email"`
	ContactPhone         string                       `json:"contactPhone,omitempty"`
	PartnerType          models.PartnerType           `json:"partnerType" validate:"required,oneof=shipping logistics ecommerce courier"`
	Address              *models.Address              `json:"address,omitempty" validate:"-"`
	BusinessRegistration *models.BusinessRegistration `json:"businessRegistration,omitempty"`
	ServiceAreas         []models.ServiceArea         `json:"serviceAreas,omitempty"`
	WebhookURL           string                       `json:"webhookUrl,omitempty" validate:"omitempty,url"`
}

type PartnerRegistration struct {
	Partner     *models.Partner
	Credentials auth.APICredentials
	Token       string
}

func (s *Service) RegisterPartner(ctx context.Context, in RegisterPartnerInput) (*PartnerRegistration, error) {
	in.ContactEmail = strings.ToLower(strings.TrimSpace(in.ContactEmail))
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	creds, err := s.newCredentials()
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(creds.APISecret)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	areas := in.ServiceAreas
	if areas == nil {
		areas = []models.ServiceArea{}
	}
	p := &models.Partner{
		ID:                   s.newID(),
		CompanyName:          in.CompanyName,
		ContactEmail:         in.ContactEmail,
		ContactPhone:         in.ContactPhone,
		PartnerType:          in.PartnerType,
		Address:              in.Address,
		BusinessRegistration: in.BusinessRegistration,
		APIKey:               creds.APIKey,
		APISecretHash:        hash,
		IsActive:             true,
		RateLimit:            models.DefaultRateLimit(),
		WebhookURL:           in.WebhookURL,
		ServiceAreas:         areas,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.CreatePartner(ctx, p); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, apperr.Conflict("Partner already exists with this email")
		}
		return nil, err
	}
	token, err := s.authn.IssueFor(auth.PartnerIdentity{Partner: p})
	if err != nil {
		return nil, err
	}
	slog.Info("partner registered", "partner_id", p.ID, "company", p.CompanyName)
	return &PartnerRegistration{Partner: p, Credentials: creds, Token: token}, nil
}

func (s *Service) LoginPartner(ctx context.Context, apiKey, apiSecret string) (Session[*models.Partner], error) {
	invalid := apperr.Auth("Invalid API credentials")
	if apiKey == "" || apiSecret == "" {
		return Session[*models.Partner]{}, invalid
	}
	p, err := s.repo.GetPartnerByAPIKey(ctx, apiKey)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Session[*models.Partner]{}, invalid
		}
		return Session[*models.Partner]{}, err
	}
	if !p.IsActive || !s.hasher.Compare(p.APISecretHash, apiSecret) {
		return Session[*models.Partner]{}, invalid
	}
	token, err := s.authn.IssueFor(auth.PartnerIdentity{Partner: p})
	if err != nil {
		return Session[*models.Partner]{}, err
	}
	return Session[*models.Partner]{Subject: p, Token: token}, nil
}

func (s *Service) Refresh(ctx context.Context, token string) (string, auth.Identity, error) {
	if token == "" {
		return "", nil, apperr.Auth("Refresh token required")
	}
	return s.authn.Refresh(ctx, token)
}

// Profile re-reads the subject so the view reflects the stored record.
func (s *Service) Profile(ctx context.Context, id auth.Identity) (any, error) {
	switch v := id.(type) {
	case auth.PartnerIdentity:
		return s.repo.GetPartnerByID(ctx, v.Partner.ID)
	case auth.CustomerIdentity:
		return s.repo.GetUserByID(ctx, v.User.ID)
	case auth.AdminIdentity:
		return s.repo.GetUserByID(ctx, v.User.ID)
	}
	return nil, apperr.Auth("Authentication required")
}
