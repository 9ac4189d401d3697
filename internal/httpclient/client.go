// Package httpclient wraps http.Client with the defaults every outbound
// call in listsync shares: an enforced timeout, a bounded redirect chain,
// and a stable User-Agent.
package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/listsync/errors"
)

// UserAgent identifies the bot to the wiki and query services, as their
// API etiquette requires.
const UserAgent = "listsync-bot/1.0 (https://github.com/teranos/listsync)"

const maxRedirects = 10

// Client wraps http.Client with shared defaults.
type Client struct {
	*http.Client
	bearer string
}

// New creates a client with the given per-call timeout.
func New(timeout time.Duration) *Client {
	c := &Client{
		Client: &http.Client{
			Timeout: timeout,
		},
	}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return errors.Newf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	return c
}

// NewWithBearer creates a client that authenticates every request with
// the given OAuth bearer token.
func NewWithBearer(timeout time.Duration, token string) *Client {
	c := New(timeout)
	c.bearer = token
	return c
}

// Get performs a GET request and returns the response body. Network and
// timeout failures come back as the retryable sentinels so callers can
// loop on errors.IsRetryable.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	return c.do(req)
}

// PostForm performs a form-encoded POST and returns the response body.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, classify(req.Context(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrTransport, err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.Wrapf(errors.ErrAuthFailure, "HTTP %d from %s", resp.StatusCode, req.URL.Host)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.Wrapf(errors.ErrTransport, "HTTP %d from %s", resp.StatusCode, req.URL.Host)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Wrapf(errors.ErrMalformedResponse, "HTTP %d from %s", resp.StatusCode, req.URL.Host)
	}

	return body, nil
}

// classify maps transport-level errors onto the retryable sentinels.
// Deadline overruns count as timeouts whether they came from the request
// context or the client's own timeout.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.WrapContext(ctx, err.Error())
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return errors.Wrap(errors.ErrTimeout, err.Error())
	}
	return errors.Wrap(errors.ErrTransport, err.Error())
}
