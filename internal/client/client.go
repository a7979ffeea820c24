// Package client sends authenticated requests to Azure Resource Manager. It
// obtains bearer tokens from the authentication engine and, when the service
// rejects a token, refreshes it and retries the request exactly once.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/azi/cli/internal/auth"
	"github.com/azi/cli/internal/transport"
)

const (
	// ClientID is the public client id of the Azure CLI. Tokens minted for it
	// are shared with the Azure CLI through the token cache.
	ClientID = "04b07795-8ddb-461a-bbee-02f9e1bf7b46"

	// DefaultResource is the audience of Azure Resource Manager tokens.
	DefaultResource = "https://management.core.windows.net/"

	requestIDHeader = "x-ms-client-request-id"
)

// Error codes that mean the bearer token was not accepted.
const (
	codeExpiredAuthenticationToken = "ExpiredAuthenticationToken"
	codeAuthenticationFailed       = "AuthenticationFailed"
)

// ErrUnexpectedServerResponse is wrapped by every ResponseError.
var ErrUnexpectedServerResponse = errors.New("unexpected server response")

// ResponseError is a non-2xx response that could not be recovered from.
type ResponseError struct {
	Status int
	Body   json.RawMessage
}

func (e *ResponseError) Error() string {
	if code, message := e.Code(), e.Message(); code != "" {
		if message != "" {
			return fmt.Sprintf("%s (HTTP %d): %s: %s", ErrUnexpectedServerResponse, e.Status, code, message)
		}
		return fmt.Sprintf("%s (HTTP %d): %s", ErrUnexpectedServerResponse, e.Status, code)
	}
	if e.Body == nil {
		return fmt.Sprintf("%s (HTTP %d)", ErrUnexpectedServerResponse, e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", ErrUnexpectedServerResponse, e.Status, string(e.Body))
}

func (e *ResponseError) Unwrap() error {
	return ErrUnexpectedServerResponse
}

// Code returns error.code from an ARM error body, if present.
func (e *ResponseError) Code() string {
	return armError(e.Body).Code
}

// Message returns error.message from an ARM error body, if present.
func (e *ResponseError) Message() string {
	return armError(e.Body).Message
}

type armErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func armError(body json.RawMessage) armErrorDetail {
	var envelope struct {
		Error armErrorDetail `json:"error"`
	}
	if body != nil {
		_ = json.Unmarshal(body, &envelope)
	}
	return envelope.Error
}

// TokenProvider issues bearer tokens. *auth.Engine implements it.
type TokenProvider interface {
	GetToken(ctx context.Context, clientID, resource string) (*auth.TokenSet, error)
	Refresh(ctx context.Context, clientID, resource string) (*auth.TokenSet, error)
}

// Request describes one ARM call. An empty Resource selects DefaultResource;
// an empty Method selects GET, or POST when Body is set.
type Request struct {
	URL      string
	Resource string
	Method   string
	Query    url.Values
	Body     []byte
}

func (r Request) method() string {
	switch {
	case r.Method != "":
		return r.Method
	case r.Body != nil:
		return http.MethodPost
	default:
		return http.MethodGet
	}
}

func (r Request) resource() string {
	if r.Resource == "" {
		return DefaultResource
	}
	return r.Resource
}

func (r Request) targetURL() (string, error) {
	if len(r.Query) == 0 {
		return r.URL, nil
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("invalid request URL %q: %w", r.URL, err)
	}
	query := u.Query()
	for key, values := range r.Query {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// Option configures a Client.
type Option func(*Client)

// WithClientID overrides the OAuth client id tokens are requested for.
func WithClientID(clientID string) Option {
	return func(c *Client) {
		c.clientID = clientID
	}
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// Client executes authenticated requests.
type Client struct {
	tokens    TokenProvider
	http      auth.HTTPExecutor
	clientID  string
	requestID func() string
	log       zerolog.Logger
}

// New creates a client that authenticates with tokens and sends requests
// through http.
func New(tokens TokenProvider, http auth.HTTPExecutor, opts ...Option) *Client {
	c := &Client{
		tokens:    tokens,
		http:      http,
		clientID:  ClientID,
		requestID: uuid.NewString,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs req and returns the response body. A top-level "value"
// member, as returned by ARM list operations, is unwrapped.
func (c *Client) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	body, err := c.ExecuteRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	return unwrapValue(body), nil
}

// ExecuteRaw runs req and returns the response body unchanged. If the
// service reports an expired or rejected token, a new token is acquired
// and the request is sent one more time; the outcome of that second attempt
// is final.
func (c *Client) ExecuteRaw(ctx context.Context, req Request) (json.RawMessage, error) {
	target, err := req.targetURL()
	if err != nil {
		return nil, err
	}
	resource := req.resource()

	set, err := c.tokens.GetToken(ctx, c.clientID, resource)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, req.method(), target, req.Body, set)
	if err != nil {
		return nil, err
	}
	if resp.IsSuccess() {
		return nonEmpty(resp.Body), nil
	}

	rejected := &ResponseError{Status: resp.Status, Body: resp.Body}
	switch rejected.Code() {
	case codeExpiredAuthenticationToken, codeAuthenticationFailed:
		c.log.Debug().Str("code", rejected.Code()).Str("url", target).Msg("Access token rejected, refreshing")
	default:
		c.log.Debug().Str("code", rejected.Code()).Int("status", resp.Status).Msg("Request failed")
		return nil, rejected
	}

	set, err = c.tokens.Refresh(ctx, c.clientID, resource)
	if err != nil {
		return nil, err
	}
	resp, err = c.send(ctx, req.method(), target, req.Body, set)
	if err != nil {
		return nil, err
	}
	if resp.IsSuccess() {
		return nonEmpty(resp.Body), nil
	}
	return nil, &ResponseError{Status: resp.Status, Body: resp.Body}
}

func (c *Client) send(ctx context.Context, method, target string, body []byte, set *auth.TokenSet) (*transport.Response, error) {
	token := set.OAuth2Token()

	header := http.Header{}
	header.Set("Authorization", token.Type()+" "+token.AccessToken)
	header.Set("Content-Type", "application/json")
	header.Set(requestIDHeader, c.requestID())

	return c.http.Execute(ctx, method, target, header, body)
}

func unwrapValue(body json.RawMessage) json.RawMessage {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body
	}
	if value, ok := envelope["value"]; ok && string(value) != "null" {
		return value
	}
	return body
}

func nonEmpty(body json.RawMessage) json.RawMessage {
	if body == nil {
		return json.RawMessage("null")
	}
	return body
}
