// Package httpclient implements the retrying JSON client every upstream
// call goes through: consult the domain rate limiter, perform the call,
// classify the response, retry the retryable classes with a fixed delay.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/ratelimit"
	"github.com/mcmod-info-mirror/mcim-sync-go/internal/upstream"
)

// UserAgent is the fixed browser-style header every outbound request
// carries.
const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) mcim-sync-go"

const (
	maxAttempts    = 3
	retryDelay     = time.Second
	defaultTimeout = 5 * time.Second
)

// Client is a thin JSON wrapper around *http.Client.
type Client struct {
	http        *http.Client
	limiter     *ratelimit.DomainRateLimiter
	extraHeader map[string]string
	log         *logrus.Entry
}

// Option configures a Client at construction.
type Option func(*Client)

// WithHeader attaches a static header (e.g. CF's x-api-key) to every
// request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.extraHeader[key] = value }
}

// WithTimeout overrides the default 5s per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithProxy routes every request through proxyURL (config.Proxies). An
// empty or unparseable value leaves the default direct transport in
// place.
func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		if proxyURL == "" {
			return
		}
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return
		}
		c.http.Transport = &http.Transport{Proxy: http.ProxyURL(parsed)}
	}
}

// New builds a Client that consults limiter before every request and logs
// through log.
func New(limiter *ratelimit.DomainRateLimiter, log *logrus.Entry, opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{Timeout: defaultTimeout},
		limiter:     limiter,
		extraHeader: map[string]string{},
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CallOptions tweaks a single request.
type CallOptions struct {
	Method        string
	Body          interface{}
	SkipRateLimit bool
}

// GetJSON performs a GET and decodes the JSON response body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out interface{}) error {
	return c.doJSON(ctx, url, CallOptions{Method: http.MethodGet}, out)
}

// PostJSON performs a POST with a JSON-encoded body and decodes the JSON
// response into out.
func (c *Client) PostJSON(ctx context.Context, url string, body, out interface{}) error {
	return c.doJSON(ctx, url, CallOptions{Method: http.MethodPost, Body: body}, out)
}

func (c *Client) doJSON(ctx context.Context, url string, opts CallOptions, out interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.attempt(ctx, url, opts, out)
		if err == nil {
			c.log.WithField("url", url).Debug("upstream call succeeded")
			return nil
		}
		lastErr = err

		if upstream.IsNotFound(err) {
			return err
		}
		if !upstream.Retryable(err) {
			return err
		}
		c.log.WithFields(logrus.Fields{"url": url, "attempt": attempt, "err": err}).Warn("upstream call failed, retrying")
	}
	return lastErr
}

func (c *Client) attempt(ctx context.Context, url string, opts CallOptions, out interface{}) error {
	if !opts.SkipRateLimit && c.limiter != nil {
		ok, err := c.limiter.Acquire(ctx, url, 1, 0)
		if err != nil {
			return fmt.Errorf("%w: %v", upstream.ErrRateLimitTimeout, err)
		}
		if !ok {
			return upstream.ErrRateLimitTimeout
		}
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(encoded)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return &upstream.TransportError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", UserAgent)
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.extraHeader {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &upstream.TransportError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &upstream.TransportError{URL: url, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("httpclient: decode response from %s: %w", url, err)
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		host := req.URL.Hostname()
		return &upstream.TooManyRequestsError{Host: host}
	case resp.StatusCode == http.StatusNotFound:
		return upstream.ErrNotFound
	default:
		return &upstream.ResponseCodeError{Status: resp.StatusCode, URL: url, Body: string(data)}
	}
}
