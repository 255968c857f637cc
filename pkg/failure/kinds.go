package failure

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strings"
)

/*
FailureKind is the closed taxonomy used for retry decisions.

Rules:
 - Every fetch outcome maps to exactly one kind.
 - Retryability is a property of the kind, never re-derived downstream.
 - The frontier consumes the kind when scheduling retries; the session
   records it on the terminal result.
*/
type FailureKind string

const (
	KindNetwork      FailureKind = "NETWORK"
	KindTimeout      FailureKind = "TIMEOUT"
	KindDNS          FailureKind = "DNS"
	KindTLS          FailureKind = "TLS"
	KindHTTP4xx      FailureKind = "HTTP_4XX"
	KindHTTP5xx      FailureKind = "HTTP_5XX"
	KindHTTP429      FailureKind = "HTTP_429"
	KindRobotsDenied FailureKind = "ROBOTS_DENIED"
	KindOffDomain    FailureKind = "OFF_DOMAIN"
	KindParser       FailureKind = "PARSER"
	KindUnknown      FailureKind = "UNKNOWN"
)

// Retryable reports whether a failure of this kind may be scheduled for
// another attempt. Terminal kinds must be recorded and never re-enqueued.
func (k FailureKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindHTTP5xx, KindHTTP429:
		return true
	case KindDNS:
		// transient resolver failures are classified by ClassifyTransport;
		// a kind of DNS that reaches here is the transient case
		return true
	default:
		return false
	}
}

// ClassifyStatus maps an HTTP status code to a FailureKind.
// 2xx and 3xx codes are not failures and map to KindUnknown.
func ClassifyStatus(statusCode int) FailureKind {
	switch {
	case statusCode == 429:
		return KindHTTP429
	case statusCode == 408:
		// request timeout behaves like a transport timeout
		return KindTimeout
	case statusCode >= 500:
		return KindHTTP5xx
	case statusCode >= 400:
		return KindHTTP4xx
	default:
		return KindUnknown
	}
}

// ClassifyTransport maps a transport-level error returned by net/http to a
// FailureKind. DNS failures are split into permanent (host not found) and
// transient (resolver timeout) cases; only the transient case is retryable.
func ClassifyTransport(err error) FailureKind {
	if err == nil {
		return KindUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			// permanent: the name does not exist
			return KindDNSPermanent
		}
		return KindDNS
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return KindTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	// url.Error wraps the transport error with its own text; inspect the
	// message for TLS handshake failures that carry no typed error
	if strings.Contains(err.Error(), "tls:") || strings.Contains(err.Error(), "x509:") {
		return KindTLS
	}

	return KindNetwork
}

// KindDNSPermanent marks a name that does not resolve at all. It has its own
// label, DNS_PERMANENT, and unlike KindDNS it is terminal.
const KindDNSPermanent FailureKind = "DNS_PERMANENT"
