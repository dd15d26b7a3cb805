// Package security provides cryptographic utilities shared by the origin
// and edge: TLS certificate health checks (certs.go) and OIDC provider
// discovery and ID token verification (oidc.go).
package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"
)

// Error message constants for certificate checks
const (
	errExpiringShortly = "%s: ** '%s' (S/N %X) expires in %d hours! **"
	errExpiringSoon    = "%s: '%s' (S/N %X) expires in roughly %d days."
	errSunsetAlg       = "%s: '%s' (S/N %X) expires after the sunset date for its signature algorithm '%s'."

	checkSigAlg = true
)

// hostResult is the result of checking one host's TLS certificate chain.
type hostResult struct {
	Host       string
	Err        error
	CommonName string
}

type sigAlgSunset struct {
	name      string
	sunsetsAt time.Time
}

var sunsetSigAlgs = map[x509.SignatureAlgorithm]sigAlgSunset{
	x509.MD2WithRSA: {name: "MD2 with RSA", sunsetsAt: time.Now()},
	x509.MD5WithRSA: {name: "MD5 with RSA", sunsetsAt: time.Now()},
	x509.SHA1WithRSA: {name: "SHA1 with RSA", sunsetsAt: time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)},
	x509.DSAWithSHA1: {name: "DSA with SHA1", sunsetsAt: time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)},
	x509.ECDSAWithSHA1: {name: "ECDSA with SHA1", sunsetsAt: time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)},
}

// CertsCheckHost checks host's TLS certificate chain for near-term
// expiration and deprecated signature algorithms. The edge calls this
// periodically against its configured origin base URL so an expiring
// upstream certificate surfaces before it starts failing proxy calls.
func CertsCheckHost(host string, warnYears, warnMonths, warnDays *int) (result hostResult) {
	result = hostResult{Host: host}

	conn, err := tls.Dial("tcp", host, nil)
	if err != nil {
		result.Err = err
		return
	}
	defer conn.Close()

	timeNow := time.Now()
	checkedCerts := make(map[string]struct{})

	for _, chain := range conn.ConnectionState().VerifiedChains {
		for certNum, cert := range chain {
			if _, checked := checkedCerts[string(cert.Signature)]; checked {
				continue
			}
			checkedCerts[string(cert.Signature)] = struct{}{}

			warningTime := timeNow.AddDate(*warnYears, *warnMonths, *warnDays)
			if warningTime.After(cert.NotAfter) {
				expiresIn := int64(cert.NotAfter.Sub(timeNow).Hours())
				if expiresIn <= 48 {
					result.Err = fmt.Errorf(errExpiringShortly, host, cert.Subject.CommonName, cert.SerialNumber, expiresIn)
				} else {
					result.Err = fmt.Errorf(errExpiringSoon, host, cert.Subject.CommonName, cert.SerialNumber, expiresIn/24)
				}
			}

			if alg, exists := sunsetSigAlgs[cert.SignatureAlgorithm]; checkSigAlg && exists && certNum != len(chain)-1 {
				if cert.NotAfter.Equal(alg.sunsetsAt) || cert.NotAfter.After(alg.sunsetsAt) {
					result.Err = fmt.Errorf(errSunsetAlg, host, cert.Subject.CommonName, cert.SerialNumber, alg.name)
				}
			}

			if result.CommonName == "" {
				result.CommonName = cert.Subject.CommonName
			}
		}
	}

	return
}
