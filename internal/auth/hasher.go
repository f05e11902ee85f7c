package auth

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", errors.Wrap(err, "bcrypt hash")
	}
	return string(b), nil
}

func (h *Hasher) Compare(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// APICredentials are shown to the partner once; only the secret's hash is stored.
type APICredentials struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

// NewAPICredentials returns "pk_" + 32 hex chars and a 64 hex char secret.
func NewAPICredentials() (APICredentials, error) {
	key, err := randomHex(16)
	if err != nil {
		return APICredentials{}, err
	}
	secret, err := randomHex(32)
	if err != nil {
		return APICredentials{}, err
	}
	return APICredentials{APIKey: "pk_" + key, APISecret: secret}, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "read random")
	}
	return hex.EncodeToString(b), nil
}
