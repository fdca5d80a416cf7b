package geocode

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gsi-geocoder/internal/model"
	"github.com/sells-group/gsi-geocoder/internal/resilience"
)

// maxBodyBytes bounds how much of a response is read. Real answers are a
// few kilobytes.
const maxBodyBytes = 4 << 20

// Resolve classifies an address. Empty addresses never reach the service.
// Transient outcomes are retried according to the configured policy, and
// the last attempt's outcome is the result.
func (g *gsiClient) Resolve(ctx context.Context, address string) (model.Outcome, error) {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return model.EmptyAddress(), nil
	}

	policy := g.policy
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.RetryLogger("gsi.search")
	}

	out, _ := resilience.DoVal(ctx, policy, func(ctx context.Context) (model.Outcome, error) {
		out := g.attempt(ctx, addr)
		if out.Status.Transient() {
			return out, resilience.NewTransientError(eris.New(out.Detail), out.Status == model.StatusTimeout)
		}
		return out, nil
	})

	if err := ctx.Err(); err != nil {
		return model.Outcome{}, eris.Wrap(err, "geocode: gsi resolve")
	}
	return out, nil
}

// attempt performs a single request under its own deadline.
func (g *gsiClient) attempt(ctx context.Context, addr string) model.Outcome {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Classify(nil, eris.Wrap(err, "rate limit"))
		}
	}

	actx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reqURL := g.baseURL + "?" + url.Values{"q": {addr}}.Encode()
	req, err := http.NewRequestWithContext(actx, http.MethodGet, reqURL, nil)
	if err != nil {
		return model.Failure(model.StatusCommunicationError, "build request: "+err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Classify(nil, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Classify(nil, err)
	}

	return Classify(&Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil)
}
