package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/lalomorales22/roundtable/core"
)

const (
	// DefaultConnectTimeout bounds TCP connect plus TLS handshake.
	DefaultConnectTimeout = 20 * time.Second
	// DefaultTotalTimeout bounds one whole request including the body read.
	DefaultTotalTimeout = 120 * time.Second
)

// HTTPOptions configures NewHTTPClient.
type HTTPOptions struct {
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
}

// NewHTTPClient returns the *http.Client shared by vendor clients.
func NewHTTPClient(optFns ...func(o *HTTPOptions)) *http.Client {
	opts := HTTPOptions{
		ConnectTimeout: DefaultConnectTimeout,
		TotalTimeout:   DefaultTotalTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = opts.ConnectTimeout

	return &http.Client{Transport: transport, Timeout: opts.TotalTimeout}
}

// Classify maps a failure that produced no vendor answer to an AgentError.
// Already classified errors are returned unchanged with vendor filled in.
func Classify(vendor string, err error) *core.AgentError {
	if err == nil {
		return nil
	}

	var ae *core.AgentError
	if errors.As(err, &ae) {
		if ae.Vendor == "" {
			ae.Vendor = vendor
		}
		return ae
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &core.AgentError{Kind: core.KindTimeout, Vendor: vendor, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &core.AgentError{Kind: core.KindTimeout, Vendor: vendor, Err: err}
	}

	return &core.AgentError{Kind: core.KindTransport, Vendor: vendor, Err: err}
}

// MissingCredential is the error returned when a vendor has no API key.
func MissingCredential(vendor string) *core.AgentError {
	return core.NewAgentError(core.KindMissingCredential, vendor, "%s API key is not configured", vendor)
}
