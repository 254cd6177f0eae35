package cacheinval

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dharsanguruparan/amenagements/internal/signing"
)

// MethodPurge is the method understood by the HTTP cache.
const MethodPurge = "PURGE"

// HTTPInvalidator purges refs from the HTTP cache in front of the API.
// Requests are signed and throttled so a burst of events cannot flood the
// cache.
type HTTPInvalidator struct {
	base    string
	client  *http.Client
	signer  *signing.Signer
	ttl     time.Duration
	limiter *rate.Limiter
}

// NewHTTPInvalidator builds an invalidator for the cache at base. An empty
// base disables it.
func NewHTTPInvalidator(base string, client *http.Client, signer *signing.Signer, ttl time.Duration, rps float64) *HTTPInvalidator {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &HTTPInvalidator{
		base:    strings.TrimRight(base, "/"),
		client:  client,
		signer:  signer,
		ttl:     ttl,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Invalidate purges ref, for example "/demandes/42".
func (h *HTTPInvalidator) Invalidate(ctx context.Context, ref string) error {
	if h.base == "" {
		return nil
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("purge %s: %w", ref, err)
	}
	req, err := http.NewRequestWithContext(ctx, MethodPurge, h.base+ref, nil)
	if err != nil {
		return fmt.Errorf("build purge %s: %w", ref, err)
	}
	expires, sig := h.signer.Headers(ref, h.ttl)
	req.Header.Set(signing.HeaderExpires, expires)
	req.Header.Set(signing.HeaderSignature, sig)
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("purge %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("purge %s: unexpected status %s", ref, resp.Status)
	}
	return nil
}
