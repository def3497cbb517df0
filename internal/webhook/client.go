package webhook

import (
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

const (
	ClientTimeout         = 30 * time.Second
	DialTimeout           = 10 * time.Second
	TLSHandshakeTimeout   = 10 * time.Second
	ResponseHeaderTimeout = 15 * time.Second
)

// Callback request headers.
const (
	HeaderSignature  = "X-AuralForge-Signature"
	HeaderTimestamp  = "X-AuralForge-Timestamp"
	HeaderDeliveryID = "X-AuralForge-Delivery-Id"
	HeaderEvent      = "X-AuralForge-Event"

	userAgent = "AuralForge-Webhook/1.0"
)

// NewHTTPClient returns a client for callback delivery. Redirects are
// never followed. Unless allowInsecure is set, every dialed address is
// checked again, so a hostname that re-resolves to a private address after
// validation is still refused.
func NewHTTPClient(allowInsecure bool) *http.Client {
	dialer := &net.Dialer{
		Timeout:   DialTimeout,
		KeepAlive: 30 * time.Second,
	}
	if !allowInsecure {
		dialer.Control = checkDialAddress
	}
	return &http.Client{
		Timeout: ClientTimeout,
		Transport: &http.Transport{
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// checkDialAddress runs after DNS resolution, on the IP about to be dialed.
func checkDialAddress(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidURL, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || isBlockedIP(ip) {
		return fmt.Errorf("%w: dial %s", ErrPrivateIP, host)
	}
	return nil
}

// signedHeaders is what a receiver needs to verify one delivery.
type signedHeaders struct {
	Signature  string
	Timestamp  string
	DeliveryID string
	Event      string
}

func (h signedHeaders) apply(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderSignature, h.Signature)
	req.Header.Set(HeaderTimestamp, h.Timestamp)
	req.Header.Set(HeaderDeliveryID, h.DeliveryID)
	req.Header.Set(HeaderEvent, h.Event)
}
