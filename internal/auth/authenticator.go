package auth

import (
	"context"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/BearBump/ParcelTrack/internal/models"
)

type IdentityStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetPartnerByID(ctx context.Context, id string) (*models.Partner, error)
	GetPartnerByAPIKey(ctx context.Context, apiKey string) (*models.Partner, error)
}

type Authenticator struct {
	store  IdentityStore
	tokens *TokenIssuer
}

func NewAuthenticator(store IdentityStore, tokens *TokenIssuer) *Authenticator {
	return &Authenticator{store: store, tokens: tokens}
}

func (a *Authenticator) AuthenticateToken(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return nil, apperr.Auth("Access denied. No token provided.")
	}
	claims, err := a.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	switch claims.Type {
	case SubjectPartner:
		p, err := a.store.GetPartnerByID(ctx, claims.Subject)
		if err != nil {
			return nil, notFoundAsAuth(err, "Invalid token or partner account deactivated.")
		}
		if !p.IsActive {
			return nil, apperr.Auth("Invalid token or partner account deactivated.")
		}
		return PartnerIdentity{Partner: p}, nil
	default:
		u, err := a.store.GetUserByID(ctx, claims.Subject)
		if err != nil {
			return nil, notFoundAsAuth(err, "Invalid token or user account deactivated.")
		}
		if !u.IsActive {
			return nil, apperr.Auth("Invalid token or user account deactivated.")
		}
		return IdentityForUser(u), nil
	}
}

func (a *Authenticator) AuthenticateAPIKey(ctx context.Context, apiKey string) (Identity, error) {
	if apiKey == "" {
		return nil, apperr.Auth("API key required")
	}
	p, err := a.store.GetPartnerByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, notFoundAsAuth(err, "Invalid API key or partner account deactivated")
	}
	if !p.IsActive {
		return nil, apperr.Auth("Invalid API key or partner account deactivated")
	}
	return PartnerIdentity{Partner: p, ViaAPIKey: true}, nil
}

// Refresh reissues a token for the subject of a still-valid token.
func (a *Authenticator) Refresh(ctx context.Context, token string) (string, Identity, error) {
	id, err := a.AuthenticateToken(ctx, token)
	if err != nil {
		return "", nil, err
	}
	fresh, err := a.IssueFor(id)
	if err != nil {
		return "", nil, err
	}
	return fresh, id, nil
}

func (a *Authenticator) IssueFor(id Identity) (string, error) {
	switch v := id.(type) {
	case PartnerIdentity:
		return a.tokens.Issue(SubjectPartner, v.Partner.ID, "", v.Partner.CompanyName)
	case CustomerIdentity:
		return a.tokens.Issue(SubjectUser, v.User.ID, string(v.User.Role), "")
	case AdminIdentity:
		return a.tokens.Issue(SubjectUser, v.User.ID, string(v.User.Role), "")
	}
	return "", apperr.Auth("Invalid token")
}

func notFoundAsAuth(err error, msg string) error {
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.Auth(msg)
	}
	return err
}
