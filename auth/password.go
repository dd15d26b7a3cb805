package auth

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor used to hash per-tenant deploy-ingest API
// keys before they're stored in the tenant registry.
const BcryptCost = 12

// HashAPIKey hashes a tenant's plaintext API key with bcrypt for storage in
// revision.Tenant.APIKeyHash. The plaintext is never persisted.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", ErrEmptySecret
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ValidateAPIKey reports whether presented matches hash.
func ValidateAPIKey(presented, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented))
}

// GenerateAPIKey produces a new random API key suitable for handing to a
// tenant at onboarding time; only its hash (via HashAPIKey) is ever stored.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
