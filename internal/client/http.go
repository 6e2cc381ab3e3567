package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxBodyExcerpt bounds how much of an error response is kept.
const maxBodyExcerpt = 4096

// newHTTPClient returns a client without a global timeout: every call carries a
// context deadline instead.
func newHTTPClient() *http.Client { return &http.Client{Timeout: 0} }

func joinURL(base string, path string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

// do sends one request bounded by timeout and returns status and body.
func do(ctx context.Context, hc *http.Client, timeout time.Duration, method, rawURL string, body io.Reader, contentType string) (int, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return 0, nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, fmt.Errorf("%s %s: %w", method, rawURL, ctx.Err())
		}
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, b, nil
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxBodyExcerpt {
		s = s[:maxBodyExcerpt]
	}
	return s
}

// Ping probes GET <baseURL>/ping. Any 2xx answer means the server is up; the body
// is ignored.
func Ping(ctx context.Context, hc *http.Client, baseURL string, timeout time.Duration) bool {
	if hc == nil {
		hc = newHTTPClient()
	}
	u, err := joinURL(baseURL, "/ping", nil)
	if err != nil {
		return false
	}
	status, _, err := do(ctx, hc, timeout, http.MethodGet, u, nil, "")
	return err == nil && status >= 200 && status < 300
}
