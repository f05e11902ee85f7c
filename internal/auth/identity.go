package auth

import (
	"slices"

	"github.com/BearBump/ParcelTrack/internal/models"
)

// Identity is a closed set: CustomerIdentity, AdminIdentity, PartnerIdentity.
type Identity interface {
	Role() models.Role
	SubjectID() string
	isIdentity()
}

type CustomerIdentity struct {
	User *models.User
}

type AdminIdentity struct {
	User *models.User
}

type PartnerIdentity struct {
	Partner *models.Partner
	// ViaAPIKey is true when the caller authenticated with X-API-Key.
	ViaAPIKey bool
}

func (CustomerIdentity) Role() models.Role { return models.RoleCustomer }

func (AdminIdentity) Role() models.Role { return models.RoleAdmin }

func (PartnerIdentity) Role() models.Role { return models.RolePartner }

func (i CustomerIdentity) SubjectID() string { return i.User.ID }

func (i AdminIdentity) SubjectID() string { return i.User.ID }

func (i PartnerIdentity) SubjectID() string { return i.Partner.ID }

func (CustomerIdentity) isIdentity() {}

func (AdminIdentity) isIdentity() {}

func (PartnerIdentity) isIdentity() {}

// IdentityForUser picks the variant from the stored role.
func IdentityForUser(u *models.User) Identity {
	if u.Role == models.RoleAdmin {
		return AdminIdentity{User: u}
	}
	return CustomerIdentity{User: u}
}

func Authorize(id Identity, roles ...models.Role) bool {
	if id == nil {
		return false
	}
	return slices.Contains(roles, id.Role())
}

// UserOf returns the user record behind a customer or admin identity.
func UserOf(id Identity) (*models.User, bool) {
	switch v := id.(type) {
	case CustomerIdentity:
		return v.User, true
	case AdminIdentity:
		return v.User, true
	}
	return nil, false
}

func PartnerOf(id Identity) (*models.Partner, bool) {
	if v, ok := id.(PartnerIdentity); ok {
		return v.Partner, true
	}
	return nil, false
}
