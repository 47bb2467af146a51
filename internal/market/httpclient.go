package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxResponseBytes caps provider response bodies. The largest normal
// payload is a 250-coin markets page, well under 1 MiB.
const maxResponseBytes = 4 << 20

// restClient is the shared HTTP layer for JSON provider APIs. It maps
// transport and status failures onto the typed outcome model.
type restClient struct {
	name    string
	baseURL string
	headers map[string]string
	http    *http.Client
}

func newRESTClient(name, baseURL string, timeout time.Duration, headers map[string]string) *restClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &restClient{
		name:    name,
		baseURL: baseURL,
		headers: headers,
		http:    &http.Client{Timeout: timeout},
	}
}

// getJSON performs a GET and decodes the body into out. The returned
// error, when non-nil, is always a *ProviderError.
func (c *restClient) getJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Permanent(c.name, op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Transient(c.name, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Transient(c.name, op, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return RateLimited(c.name, op, parseRetryAfter(resp.Header, time.Now()), fmt.Errorf("status 429"))
	case resp.StatusCode >= 500:
		return Transient(c.name, op, fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(body)))
	default:
		return Permanent(c.name, op, fmt.Errorf("status %d: %s", resp.StatusCode, truncateBody(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return Transient(c.name, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// parseRetryAfter reads the reset hint from a 429 response. Providers
// send either Retry-After (delta seconds or an HTTP date) or an
// X-RateLimit-Reset epoch.
func parseRetryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			if d := t.Sub(now); d > 0 {
				return d
			}
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}

func truncateBody(body []byte) string {
	const n = 200
	if len(body) > n {
		return string(body[:n]) + "..."
	}
	return string(body)
}
