// Package client is a Go consumer of the storefront API. It mirrors the
// browser frontend: a cookie-jar session, an automatic token-refresh
// transport and per-concern state stores that surface failures as
// notifications instead of errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"golang.org/x/sync/singleflight"
)

// retriedKey marks a request context as already replayed after a refresh,
// without leaking a marker header onto the wire.
type retriedKey struct{}

type Client struct {
	BaseURL string

	http      *http.Client
	transport *refreshTransport
}

func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("client: cookie jar: %w", err)
	}

	rt := &refreshTransport{
		base:       http.DefaultTransport,
		jar:        jar,
		refreshURL: strings.TrimRight(baseURL, "/") + "/api/auth/refresh-token",
	}
	rt.refreshClient = &http.Client{Jar: jar}

	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Jar: jar, Transport: rt},
		transport: rt,
	}, nil
}

// OnSessionExpired registers the forced-logout hook fired when a refresh
// attempt itself fails.
func (c *Client) OnSessionExpired(fn func()) {
	c.transport.onSessionExpired = fn
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode body: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, payload)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message any `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message != nil {
			return fmt.Errorf("client: %s %s: %d: %v", method, path, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("client: %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
	}
	return nil
}

// refreshTransport retries a request once after a 401 by first running a
// single shared refresh call. Concurrent 401s join the same in-flight
// refresh instead of each issuing their own.
type refreshTransport struct {
	base          http.RoundTripper
	jar           http.CookieJar
	refreshURL    string
	refreshClient *http.Client

	group            singleflight.Group
	onSessionExpired func()
}

func (t *refreshTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if req.Context().Value(retriedKey{}) != nil || strings.HasSuffix(req.URL.Path, "/auth/refresh-token") {
		return resp, nil
	}

	_, refreshErr, _ := t.group.Do("refresh", func() (any, error) {
		return nil, t.refresh(req.Context())
	})
	if refreshErr != nil {
		if t.onSessionExpired != nil {
			t.onSessionExpired()
		}
		// The original 401 is what the caller sees.
		return resp, nil
	}

	retry, err := t.cloneForRetry(req)
	if err != nil {
		return resp, nil
	}
	resp.Body.Close()
	return t.base.RoundTrip(retry)
}

func (t *refreshTransport) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.refreshURL, nil)
	if err != nil {
		return err
	}
	resp, err := t.refreshClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh failed with status %d", resp.StatusCode)
	}
	return nil
}

// cloneForRetry rebuilds the request with a rewound body and the cookies
// the refresh just rotated. Requests without GetBody cannot be replayed.
func (t *refreshTransport) cloneForRetry(req *http.Request) (*http.Request, error) {
	retry := req.Clone(context.WithValue(req.Context(), retriedKey{}, true))

	if req.Body != nil {
		if req.GetBody == nil {
			return nil, fmt.Errorf("request body cannot be replayed")
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}

	if t.jar != nil {
		retry.Header.Del("Cookie")
		for _, ck := range t.jar.Cookies(retry.URL) {
			retry.AddCookie(ck)
		}
	}
	return retry, nil
}
