package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"home.systems/revision"
)

// SessionSigner signs and verifies visitor session cookies per spec §4.10:
// an HMAC over tenant || subject || issued_at || provider, verified
// statelessly — no server-side session table, no revocation list. This is
// deliberately not a JWT: the wire format is fixed by the spec, and a
// general-purpose token library would add claim fields and parsing
// behavior the spec doesn't call for.
type SessionSigner struct {
	secret []byte
}

// NewSessionSigner builds a SessionSigner from a shared secret. The secret
// must be kept stable across origin restarts, or every outstanding session
// is invalidated.
func NewSessionSigner(secret string) (*SessionSigner, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &SessionSigner{secret: []byte(secret)}, nil
}

const sessionFieldSep = "|"

// Sign renders sess into a cookie value: a pipe-delimited payload followed
// by a base64 HMAC-SHA256 tag, separated by a dot.
func (s *SessionSigner) Sign(sess revision.Session) string {
	payload := sessionPayload(sess)
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	tag := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return payload + "." + tag
}

// Verify checks a cookie value's HMAC tag and decodes its fields. It does
// not check expiry against SessionTimeout — callers compare Session.IssuedAt
// against their own timeout policy, since the signer has no config of its
// own to keep this type trivially testable.
func (s *SessionSigner) Verify(cookie string) (revision.Session, error) {
	dot := strings.LastIndexByte(cookie, '.')
	if dot < 0 {
		return revision.Session{}, ErrInvalidSession
	}
	payload, tag := cookie[:dot], cookie[dot+1:]

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(tag), []byte(expected)) != 1 {
		return revision.Session{}, ErrInvalidSession
	}

	return parseSessionPayload(payload)
}

func sessionPayload(sess revision.Session) string {
	return strings.Join([]string{
		sess.Tenant,
		sess.Subject,
		strconv.FormatInt(sess.IssuedAt.Unix(), 10),
		sess.Provider,
	}, sessionFieldSep)
}

func parseSessionPayload(payload string) (revision.Session, error) {
	fields := strings.Split(payload, sessionFieldSep)
	if len(fields) != 4 {
		return revision.Session{}, ErrInvalidSession
	}
	issuedUnix, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return revision.Session{}, fmt.Errorf("auth: %w: bad issued_at", ErrInvalidSession)
	}
	return revision.Session{
		Tenant:   fields[0],
		Subject:  fields[1],
		IssuedAt: time.Unix(issuedUnix, 0).UTC(),
		Provider: fields[3],
	}, nil
}
