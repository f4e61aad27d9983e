// Package security inspects the TLS certificate presented by HTTPS backend
// endpoints. The http probe attaches the resulting CertStatus to its payload
// and reports the days left as a metric.
package security
