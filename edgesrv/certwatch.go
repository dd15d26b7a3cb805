package edgesrv

import (
	"net/url"
	"time"

	"home.systems/security"
)

const certCheckInterval = 6 * time.Hour

// watchOriginCert periodically checks the TLS certificate chain of the
// configured origin and logs a warning well before it expires. It is a
// no-op when the origin is reached over plain HTTP, which is the case in
// local development.
func (s *Server) watchOriginCert() {
	u, err := url.Parse(s.cfg.OriginBaseURL)
	if err != nil || u.Scheme != "https" {
		return
	}
	host := u.Host
	if u.Port() == "" {
		host = u.Host + ":443"
	}

	warnYears, warnMonths, warnDays := 0, 0, 14
	check := func() {
		result := security.CertsCheckHost(host, &warnYears, &warnMonths, &warnDays)
		if result.Err != nil {
			logger.WithField("host", host).WithError(result.Err).Warn("origin certificate check")
		}
	}

	check()
	ticker := time.NewTicker(certCheckInterval)
	go func() {
		defer ticker.Stop()
		for range ticker.C {
			check()
		}
	}()
}
