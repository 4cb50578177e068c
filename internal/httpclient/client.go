package httpclient

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Options configures New.
type Options struct {
	// Name identifies the client in trace logs.
	Name    string
	Timeout time.Duration
	// RequestsPerSecond paces outgoing requests. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
	// Base is the underlying transport; http.DefaultTransport when nil.
	Base http.RoundTripper
}

// New returns an HTTP client with trace logging and optional request pacing.
func New(opts Options) *http.Client {
	transport := opts.Base
	if opts.RequestsPerSecond > 0 {
		burst := max(opts.Burst, 1)
		transport = &rateTransport{
			base:    transport,
			limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst),
		}
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: NewTraceTransport(opts.Name, transport),
	}
}

// NewTraceClient returns an HTTP client that logs requests at trace level.
func NewTraceClient(name string, timeout time.Duration) *http.Client {
	return New(Options{Name: name, Timeout: timeout})
}

type rateTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
