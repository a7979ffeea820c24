// Package transport executes HTTPS requests and decodes JSON responses. It is
// the only place the CLI talks to the network.
package transport

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// ErrPlaintext is returned for any URL that is not https. Bearer tokens are
// never sent in the clear.
var ErrPlaintext = errors.New("refusing non-HTTPS request")

// secretFields are response members masked in trace logs.
var secretFields = []string{"access_token", "refresh_token", "id_token"}

// Response is a completed HTTP exchange. Body is nil when the response body
// was empty or not JSON.
type Response struct {
	Status int
	Body   json.RawMessage
}

// IsSuccess returns true for 2xx statuses.
func (r *Response) IsSuccess() bool {
	return r.Status >= 200 && r.Status < 300
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = httpClient
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		c.httpClient.Timeout = timeout
		return nil
	}
}

// WithCAFile trusts the PEM certificates in path in addition to the system
// roots, e.g. for TLS-intercepting corporate proxies.
func WithCAFile(path string) Option {
	return func(c *Client) error {
		pem, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read CA file: %w", err)
		}

		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("invalid certificate authority: no certificates found in %s", path)
		}

		base, ok := http.DefaultTransport.(*http.Transport)
		if !ok {
			return errors.New("unexpected default transport")
		}
		tr := base.Clone()
		if tr.TLSClientConfig == nil {
			tr.TLSClientConfig = newTLSConfig()
		}
		tr.TLSClientConfig.RootCAs = pool
		c.httpClient.Transport = tr
		return nil
	}
}

// WithLogger sets the request logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) error {
		c.log = log
		return nil
	}
}

// Client executes requests against HTTPS endpoints.
type Client struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates a client with DefaultTimeout and the given options applied in order.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// HTTPClient exposes the underlying client for libraries that need one.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	return c.Execute(ctx, http.MethodGet, rawURL, nil, nil)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte) (*Response, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return c.Execute(ctx, http.MethodPost, rawURL, header, body)
}

// PostForm issues a form-encoded POST request.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*Response, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Execute(ctx, http.MethodPost, rawURL, header, []byte(form.Encode()))
}

// Execute sends the request. Non-2xx responses are not errors; callers
// inspect Response.Status. Only transport failures and plaintext URLs
// return an error.
func (c *Client) Execute(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL %q: %w", rawURL, err)
	}
	if u.Scheme != "https" {
		c.log.Warn().Str("url", rawURL).Msg("Non-HTTPS request refused")
		return nil, fmt.Errorf("%w: %s", ErrPlaintext, rawURL)
	}

	c.log.Debug().Str("method", method).Str("url", rawURL).Msg("Requesting")
	c.log.Trace().Interface("headers", redact(header)).Int("body_bytes", len(body)).Msg("Request details")

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	result := &Response{Status: resp.StatusCode}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && json.Valid(trimmed) {
		result.Body = json.RawMessage(trimmed)
	} else if len(trimmed) > 0 {
		c.log.Debug().Int("status", resp.StatusCode).Msg("Response body is not JSON")
	}

	if result.IsSuccess() {
		if e := c.log.Trace(); e.Enabled() {
			e.Int("status", resp.StatusCode).RawJSON("body", redactBody(result.Body)).Msg("Response")
		}
	} else {
		c.log.Debug().Int("status", resp.StatusCode).Msg("Request not successful")
	}
	return result, nil
}

func redact(header http.Header) http.Header {
	if header.Get("Authorization") == "" {
		return header
	}
	clone := header.Clone()
	clone.Set("Authorization", "Bearer <redacted>")
	return clone
}

// redactBody masks token members of a JSON object. Other bodies are
// returned unchanged.
func redactBody(body json.RawMessage) []byte {
	if body == nil {
		return []byte("null")
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(body, &object); err != nil {
		return body
	}
	masked := false
	for _, field := range secretFields {
		if _, ok := object[field]; ok {
			object[field] = json.RawMessage(`"<redacted>"`)
			masked = true
		}
	}
	if !masked {
		return body
	}
	data, err := json.Marshal(object)
	if err != nil {
		return []byte(`"<redacted>"`)
	}
	return data
}
