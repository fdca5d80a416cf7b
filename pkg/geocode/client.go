// Package geocode resolves Japanese addresses to coordinates through the GSI
// (Geospatial Information Authority of Japan) address search service.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/gsi-geocoder/internal/model"
	"github.com/sells-group/gsi-geocoder/internal/resilience"
)

// DefaultBaseURL is the GSI address search endpoint.
const DefaultBaseURL = "https://msearch.gsi.go.jp/address-search/AddressSearch"

// Client resolves one address into exactly one outcome.
type Client interface {
	// Resolve returns the outcome for address. Service failures are reported
	// through the outcome's status; an error is returned only when ctx is
	// cancelled before an outcome could be produced.
	Resolve(ctx context.Context, address string) (model.Outcome, error)
}

// Option configures the resolver.
type Option func(*gsiClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *gsiClient) {
		g.httpClient = hc
	}
}

// WithBaseURL points the resolver at a different endpoint.
func WithBaseURL(u string) Option {
	return func(g *gsiClient) {
		if u != "" {
			g.baseURL = u
		}
	}
}

// WithTimeout sets the deadline applied to each individual attempt.
func WithTimeout(d time.Duration) Option {
	return func(g *gsiClient) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRetryPolicy sets how transient outcomes are retried inside one call.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(g *gsiClient) {
		g.policy = p
	}
}

// WithRateLimit caps requests per second across all callers. Zero disables
// the limiter.
func WithRateLimit(rps float64) Option {
	return func(g *gsiClient) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent header sent with each request.
func WithUserAgent(ua string) Option {
	return func(g *gsiClient) {
		g.userAgent = ua
	}
}

// WithMaxConns sizes the connection pool of the default HTTP client. It has
// no effect when WithHTTPClient is used.
func WithMaxConns(n int) Option {
	return func(g *gsiClient) {
		if n > 0 {
			g.maxConns = n
		}
	}
}

type gsiClient struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	policy     resilience.Policy
	limiter    *rate.Limiter
	userAgent  string
	maxConns   int
}

// NewClient creates a GSI resolver with the given options.
func NewClient(opts ...Option) Client {
	g := &gsiClient{
		baseURL:   DefaultBaseURL,
		timeout:   30 * time.Second,
		policy:    resilience.DefaultPolicy(),
		userAgent: "gsi-geocoder/1.0",
		maxConns:  100,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.httpClient == nil {
		g.httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxConnsPerHost:     g.maxConns,
				MaxIdleConnsPerHost: g.maxConns,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}
	}
	return g
}
