package http

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

const (
	maxIdleConns        = 16
	maxIdleConnsPerHost = 4
	timeout             = 30 * time.Second
	keepAliveTime       = 1 * time.Hour
	requestTimeout      = 60 * time.Second
)

type clientOption struct {
	insecureSkipVerify bool
	requestTimeout     time.Duration
}

// ClientOption configures the client returned by NewClient
type ClientOption func(*clientOption)

// WithInsecureSkipVerify disables TLS certificate verification.
// Callers are expected to log the choice; it is never the default.
func WithInsecureSkipVerify(skip bool) ClientOption {
	return func(o *clientOption) {
		o.insecureSkipVerify = skip
	}
}

// WithRequestTimeout bounds a single request including reading the body.
// Non-positive values are ignored.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(o *clientOption) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

func NewClient(options ...ClientOption) *http.Client {
	o := &clientOption{
		requestTimeout: requestTimeout,
	}
	for _, option := range options {
		option(o)
	}

	defaultTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: o.requestTimeout}
	}
	newTransport := defaultTransport.Clone()

	newTransport.MaxIdleConns = maxIdleConns
	newTransport.MaxIdleConnsPerHost = maxIdleConnsPerHost
	newTransport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: keepAliveTime,
	}).DialContext

	if o.insecureSkipVerify {
		tlsConfig := newTransport.TLSClientConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		} else {
			tlsConfig = tlsConfig.Clone()
		}
		tlsConfig.InsecureSkipVerify = true //nolint:gosec // opt-in via --insecure-skip-verify
		newTransport.TLSClientConfig = tlsConfig
	}

	return &http.Client{
		Transport: newTransport,
		Timeout:   o.requestTimeout,
	}
}
