package originsrv

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"home.systems/errs"
	"home.systems/revision"
	"home.systems/security"
)

// providerFor returns the OIDC provider for (tenant, provider), discovering
// and caching it on first use. Each provider's client credentials are read
// from environment variables named by convention
// MOM_OIDC_<PROVIDER>_{ISSUER,CLIENT_ID,CLIENT_SECRET,REDIRECT_URL} — one
// registration per provider, shared across every tenant that enables it.
func (s *Server) providerFor(c echo.Context, tenantLabel, provider string) (*security.OIDCProvider, error) {
	t, err := s.tenants.Get(tenantLabel)
	if err != nil {
		return nil, err
	}
	if !contains(t.IdentityProviders, provider) {
		return nil, errs.New(errs.KindInput, "provider not enabled for tenant "+tenantLabel)
	}

	s.idpMu.Lock()
	defer s.idpMu.Unlock()
	if p, ok := s.idps[provider]; ok {
		return p, nil
	}

	prefix := "MOM_OIDC_" + provider
	issuer := os.Getenv(prefix + "_ISSUER")
	clientID := os.Getenv(prefix + "_CLIENT_ID")
	clientSecret := os.Getenv(prefix + "_CLIENT_SECRET")
	redirectURL := os.Getenv(prefix + "_REDIRECT_URL")
	if issuer == "" || clientID == "" {
		return nil, errs.New(errs.KindInput, fmt.Sprintf("identity provider %q is not configured", provider))
	}

	p, err := security.NewOIDCProvider(c.Request().Context(), security.OIDCConfig{
		ProviderURL:  issuer,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "discovering identity provider "+provider, err)
	}
	s.idps[provider] = p
	return p, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// handleIdentityLogin redirects the visitor to provider's authorization
// endpoint. The callback reads the tenant label and provider from its own
// URL path; the OAuth2 state parameter is not checked there.
func (s *Server) handleIdentityLogin(c echo.Context) error {
	tenantLabel := c.Param("tenant")
	provider := c.Param("provider")

	p, err := s.providerFor(c, tenantLabel, provider)
	if err != nil {
		return err
	}
	state := tenantLabel + ":" + provider
	return c.Redirect(http.StatusFound, p.OAuth2Config().AuthCodeURL(state))
}

// handleIdentityCallback completes the OAuth2 code exchange, verifies the
// ID token, upserts a credential record, and sets the visitor's signed
// session cookie.
func (s *Server) handleIdentityCallback(c echo.Context) error {
	tenantLabel := c.Param("tenant")
	provider := c.Param("provider")
	ctx := c.Request().Context()

	p, err := s.providerFor(c, tenantLabel, provider)
	if err != nil {
		return err
	}

	code := c.QueryParam("code")
	if code == "" {
		return errs.New(errs.KindInput, "missing authorization code")
	}

	token, err := p.OAuth2Config().Exchange(ctx, code)
	if err != nil {
		return errs.Wrap(errs.KindUnauthorized, "exchanging authorization code", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return errs.New(errs.KindUnauthorized, "provider response carried no id_token")
	}
	claims, err := p.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return errs.Wrap(errs.KindUnauthorized, "verifying id token", err)
	}

	cred := revision.Credential{
		Tenant:      tenantLabel,
		Provider:    provider,
		Subject:     claims.Subject,
		DisplayName: claims.Name,
	}
	if err := s.tenants.UpsertCredential(cred); err != nil {
		return err
	}

	sess := revision.Session{
		Tenant:   tenantLabel,
		Subject:  claims.Subject,
		IssuedAt: time.Now().UTC(),
		Provider: provider,
	}
	cookie := &http.Cookie{
		Name:     "home_session",
		Value:    s.sessions.Sign(sess),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
	c.SetCookie(cookie)

	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "subject": claims.Subject})
}
