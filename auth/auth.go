// Package auth implements the origin's two independent authentication
// surfaces: deploy-ingest API key verification backed by bcrypt (issuing a
// JWT admin session on success), and the HMAC-signed visitor session
// cookie from spec §4.10. They share no secret and no code path, since a
// compromised visitor session must never grant deploy access and vice
// versa.
package auth

import (
	"fmt"

	"home.systems/revision"
)

// TenantAuth validates deploy-ingest API keys and issues origin-internal
// admin session tokens.
type TenantAuth struct {
	config *Config
	tokens *TokenService
}

// NewTenantAuth creates a TenantAuth from config, defaulting it if nil.
func NewTenantAuth(config *Config) *TenantAuth {
	if config == nil {
		config = DefaultConfig()
	}
	return &TenantAuth{
		config: config,
		tokens: NewTokenService(config.JWTSecret, config.JWTExpiration),
	}
}

// Authenticate validates presentedKey against tenant's stored hash and, on
// success, issues an admin session token scoped to that tenant.
func (a *TenantAuth) Authenticate(tenant revision.Tenant, presentedKey string) (string, error) {
	if err := ValidateAPIKey(presentedKey, tenant.APIKeyHash); err != nil {
		return "", ErrInvalidCredentials
	}
	token, err := a.tokens.GenerateToken(tenant.Label)
	if err != nil {
		return "", fmt.Errorf("auth: issuing admin session: %w", err)
	}
	return token, nil
}

// ValidateSession validates an admin session token and returns the tenant
// it was issued for.
func (a *TenantAuth) ValidateSession(token string) (string, error) {
	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.Tenant, nil
}
