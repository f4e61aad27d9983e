package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"
)

// dialTimeout bounds one TLS handshake.
const dialTimeout = 10 * time.Second

// ExpiringWithin is the window in which a valid certificate is reported as
// expiring.
const ExpiringWithin = 30 * 24 * time.Hour

// Certificate status values.
const (
	CertValid       = "valid"
	CertExpiring    = "expiring"
	CertExpired     = "expired"
	CertUnreachable = "unreachable"
)

// CertStatus describes the leaf certificate presented by a backend endpoint.
type CertStatus struct {
	Endpoint string `json:"endpoint"`
	AuthType string `json:"auth_type"`
	Status   string `json:"status"`
	NotAfter string `json:"not_after,omitempty"`
	Issuer   string `json:"issuer,omitempty"`
	DaysLeft int    `json:"days_left"`
}

// Expired reports whether the certificate can no longer be used.
func (c *CertStatus) Expired() bool {
	return c != nil && c.Status == CertExpired
}

// Map flattens the status into the generic payload shape used by probes.
func (c *CertStatus) Map() map[string]any {
	return map[string]any{
		"endpoint":  c.Endpoint,
		"auth_type": c.AuthType,
		"status":    c.Status,
		"not_after": c.NotAfter,
		"issuer":    c.Issuer,
		"days_left": c.DaysLeft,
	}
}

// Check dials the TLS endpoint and returns a CertStatus describing the leaf
// certificate.
//
// Returns nil for non-HTTPS endpoints: there is no TLS certificate to inspect.
func Check(ctx context.Context, endpoint, authMode string, insecure bool) *CertStatus {
	return check(ctx, endpoint, authMode, insecure, time.Now())
}

func check(ctx context.Context, endpoint, authMode string, insecure bool, now time.Time) *CertStatus {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{
		Endpoint: endpoint,
		AuthType: authMode,
	}
	if cs.AuthType == "" {
		cs.AuthType = "none"
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: insecure, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = CertUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = CertUnreachable
		return cs
	}

	leaf := peerCerts[0]
	remaining := leaf.NotAfter.Sub(now)

	cs.NotAfter = leaf.NotAfter.UTC().Format(time.RFC3339)
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(remaining.Hours() / 24))
	cs.Status = classify(remaining)

	return cs
}

// classify maps the remaining certificate lifetime to a status value.
func classify(remaining time.Duration) string {
	switch {
	case remaining <= 0:
		return CertExpired
	case remaining <= ExpiringWithin:
		return CertExpiring
	default:
		return CertValid
	}
}
