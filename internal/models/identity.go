package models

import (
	"slices"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RolePartner  Role = "partner"
)

type Preferences struct {
	EmailNotifications bool `json:"emailNotifications"`
	SMSNotifications   bool `json:"smsNotifications"`
	PushNotifications  bool `json:"pushNotifications"`
}

func DefaultPreferences() Preferences {
	return Preferences{EmailNotifications: true, SMSNotifications: false, PushNotifications: true}
}

type User struct {
	ID           string      `json:"id"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	FirstName    string      `json:"firstName"`
	LastName     string      `json:"lastName"`
	Phone        string      `json:"phone,omitempty"`
	Address      *Address    `json:"address,omitempty"`
	Role         Role        `json:"role"`
	Preferences  Preferences `json:"preferences"`
	IsActive     bool        `json:"isActive"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

type UserPatch struct {
	FirstName *string
	LastName  *string
	Phone     *string
	Address   *Address
}

type PartnerType string

const (
	PartnerShipping  PartnerType = "shipping"
	PartnerLogistics PartnerType = "logistics"
	PartnerEcommerce PartnerType = "ecommerce"
	PartnerCourier   PartnerType = "courier"
)

var PartnerTypes = []PartnerType{PartnerShipping, PartnerLogistics, PartnerEcommerce, PartnerCourier}

func (t PartnerType) Valid() bool { return slices.Contains(PartnerTypes, t) }

type BusinessRegistration struct {
	RegistrationNumber string `json:"registrationNumber,omitempty"`
	TaxID              string `json:"taxId,omitempty"`
	License            string `json:"license,omitempty"`
}

type ServiceArea struct {
	Country string   `json:"country"`
	Regions []string `json:"regions,omitempty"`
}

type RateLimit struct {
	RequestsPerHour int `json:"requestsPerHour"`
	RequestsPerDay  int `json:"requestsPerDay"`
}

func DefaultRateLimit() RateLimit {
	return RateLimit{RequestsPerHour: 1000, RequestsPerDay: 10000}
}

type Partner struct {
	ID                   string                `json:"id"`
	CompanyName          string                `json:"companyName"`
	ContactEmail         string                `json:"contactEmail"`
	ContactPhone         string                `json:"contactPhone,omitempty"`
	PartnerType          PartnerType           `json:"partnerType"`
	Address              *Address              `json:"address,omitempty"`
	BusinessRegistration *BusinessRegistration `json:"businessRegistration,omitempty"`
	APIKey               string                `json:"apiKey"`
	APISecretHash        string                `json:"-"`
	IsActive             bool                  `json:"isActive"`
	RateLimit            RateLimit             `json:"rateLimit"`
	WebhookURL           string                `json:"webhookUrl,omitempty"`
	ServiceAreas         []ServiceArea         `json:"serviceAreas"`
	CreatedAt            time.Time             `json:"createdAt"`
	UpdatedAt            time.Time             `json:"updatedAt"`
}

func (p *Partner) Summary() *PartnerSummary {
	return &PartnerSummary{CompanyName: p.CompanyName, PartnerType: p.PartnerType}
}

func (p *Partner) Clone() *Partner {
	if p == nil {
		return nil
	}
	c := *p
	if p.Address != nil {
		a := *p.Address
		c.Address = &a
	}
	if p.BusinessRegistration != nil {
		b := *p.BusinessRegistration
		c.BusinessRegistration = &b
	}
	c.ServiceAreas = make([]ServiceArea, len(p.ServiceAreas))
	for i, sa := range p.ServiceAreas {
		c.ServiceAreas[i] = ServiceArea{Country: sa.Country, Regions: slices.Clone(sa.Regions)}
	}
	return &c
}

// PartnerPatch has no slot for credentials or the active flag; those have
// dedicated operations.
type PartnerPatch struct {
	CompanyName          *string
	ContactPhone         *string
	PartnerType          *PartnerType
	Address              *Address
	BusinessRegistration *BusinessRegistration
}

type PartnerFilter struct {
	IsActive    *bool
	PartnerType *PartnerType
	Page        int
	Limit       int
}

// Page mirrors the paginated envelope clients already consume.
type Page[T any] struct {
	Docs        []T  `json:"docs"`
	TotalDocs   int  `json:"totalDocs"`
	Limit       int  `json:"limit"`
	Page        int  `json:"page"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

func NewPage[T any](docs []T, total, page, limit int) Page[T] {
	if docs == nil {
		docs = []T{}
	}
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Page[T]{
		Docs:        docs,
		TotalDocs:   total,
		Limit:       limit,
		Page:        page,
		TotalPages:  pages,
		HasNextPage: page < pages,
		HasPrevPage: page > 1,
	}
}

// NormalizePaging applies page>=1 and the default limit of 10 (max 100).
func NormalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
