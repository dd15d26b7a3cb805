package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"home.systems/revision"
)

func TestSessionRoundTrip(t *testing.T) {
	signer, err := NewSessionSigner("top-secret")
	require.NoError(t, err)

	sess := revision.Session{
		Tenant:   "acme",
		Subject:  "user-123",
		Provider: "github",
		IssuedAt: time.Now().Truncate(time.Second).UTC(),
	}

	cookie := signer.Sign(sess)
	got, err := signer.Verify(cookie)
	require.NoError(t, err)
	require.Equal(t, sess, got)
}

func TestSessionRejectsTamperedCookie(t *testing.T) {
	signer, err := NewSessionSigner("top-secret")
	require.NoError(t, err)

	cookie := signer.Sign(revision.Session{Tenant: "acme", Subject: "user-123", Provider: "github", IssuedAt: time.Now()})
	tampered := cookie[:len(cookie)-1] + "x"

	_, err = signer.Verify(tampered)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessionRejectsDifferentSecret(t *testing.T) {
	signer1, err := NewSessionSigner("secret-one")
	require.NoError(t, err)
	signer2, err := NewSessionSigner("secret-two")
	require.NoError(t, err)

	cookie := signer1.Sign(revision.Session{Tenant: "acme", Subject: "user-123", Provider: "github", IssuedAt: time.Now()})
	_, err = signer2.Verify(cookie)
	require.ErrorIs(t, err, ErrInvalidSession)
}

func TestAuthenticateValidatesAPIKey(t *testing.T) {
	hash, err := HashAPIKey("correct-key")
	require.NoError(t, err)

	tenant := revision.Tenant{Label: "acme", APIKeyHash: hash}
	a := NewTenantAuth(&Config{JWTSecret: "jwt-secret", JWTExpiration: time.Hour})

	token, err := a.Authenticate(tenant, "correct-key")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = a.Authenticate(tenant, "wrong-key")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	label, err := a.ValidateSession(token)
	require.NoError(t, err)
	require.Equal(t, "acme", label)
}
