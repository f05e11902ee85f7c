package auth

import (
	"time"

	"github.com/BearBump/ParcelTrack/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	SubjectUser    = "user"
	SubjectPartner = "partner"
)

type Claims struct {
	Type        string `json:"type"`
	Role        string `json:"role,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

func (t *TokenIssuer) Issue(subjectType, subjectID, role, companyName string) (string, error) {
	now := t.now().UTC()
	claims := Claims{
		Type:        subjectType,
		Role:        role,
		CompanyName: companyName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Parse verifies signature and expiry. Every failure is an auth error.
func (t *TokenIssuer) Parse(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Auth("Token expired")
		}
		return nil, apperr.Auth("Invalid token")
	}
	if claims.Subject == "" || (claims.Type != SubjectUser && claims.Type != SubjectPartner) {
		return nil, apperr.Auth("Invalid token")
	}
	return &claims, nil
}
