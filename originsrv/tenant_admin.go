package originsrv

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"home.systems/auth"
	"home.systems/errs"
)

type createTenantRequest struct {
	Label string `json:"label"`
}

type createTenantResponse struct {
	Label  string `json:"label"`
	APIKey string `json:"api_key"` // plaintext, shown exactly once
}

// handleCreateTenant registers a new tenant and mints its first API key.
// Only the plaintext key returned here is ever seen; the registry stores
// just its bcrypt hash.
func (s *Server) handleCreateTenant(c echo.Context) error {
	var req createTenantRequest
	if err := c.Bind(&req); err != nil {
		return errs.Wrap(errs.KindInput, "malformed request", err)
	}

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return err
	}

	t, err := s.tenants.Create(req.Label, hash)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, createTenantResponse{Label: t.Label, APIKey: key})
}

// handleRotateKey replaces a tenant's API key and returns the new plaintext
// value; the old key stops validating immediately.
func (s *Server) handleRotateKey(c echo.Context) error {
	label := c.Param("tenant")

	key, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return err
	}

	if _, err := s.tenants.RotateAPIKey(label, hash); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"label": label, "api_key": key})
}

// handleEnableProvider turns on an identity provider for a tenant. The
// provider must already be configured (its OIDC discovery document
// reachable) before a login attempt against it will succeed; this call
// only records the tenant's intent to use it.
func (s *Server) handleEnableProvider(c echo.Context) error {
	label := c.Param("tenant")
	provider := c.Param("provider")

	t, err := s.tenants.EnableIdentityProvider(label, provider)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t)
}
