package auth

import "time"

// Config configures the origin's authentication surface: deploy-ingest API
// key verification and origin-internal admin session tokens.
type Config struct {
	// JWTSecret signs origin-internal admin session tokens, issued after a
	// deploy-ingest API key validates.
	JWTSecret     string
	JWTExpiration time.Duration

	// SessionSecret signs visitor session cookies per spec §4.10. It is
	// deliberately a separate secret from JWTSecret: visitor sessions and
	// admin sessions must remain independently revocable by rotating one
	// without invalidating the other.
	SessionSecret  string
	SessionTimeout time.Duration

	CookieSecure   bool
	CookieHTTPOnly bool
	CookieSameSite string
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	return &Config{
		JWTExpiration:  24 * time.Hour,
		SessionTimeout: 30 * 24 * time.Hour,
		CookieSecure:   true,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	}
}
