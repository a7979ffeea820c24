package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/azi/cli/internal/transport"
)

const (
	grantTypeRefreshToken = "refresh_token"
	grantTypeDeviceCode   = "device_code"

	errorInvalidGrant         = "invalid_grant"
	errorAuthorizationPending = "authorization_pending"

	deviceCodeAPIVersion = "1.0"
)

// HTTPExecutor sends a request and returns the decoded response. Non-2xx
// statuses are returned as responses, not errors.
type HTTPExecutor interface {
	Execute(ctx context.Context, method, rawURL string, header http.Header, body []byte) (*transport.Response, error)
}

type deviceCodeResponse struct {
	DeviceCode      string       `json:"device_code"`
	UserCode        string       `json:"user_code"`
	VerificationURL string       `json:"verification_url"`
	ExpiresIn       epochSeconds `json:"expires_in"`
	Interval        epochSeconds `json:"interval"`
	Message         string       `json:"message"`
}

type oauthErrorResponse struct {
	Error         string `json:"error"`
	Description   string `json:"error_description"`
	ErrorCodes    []int  `json:"error_codes"`
	CorrelationID string `json:"correlation_id"`
}

// identityClient speaks the Azure AD v1 token and device code endpoints.
type identityClient struct {
	http     HTTPExecutor
	endpoint string
}

func (c *identityClient) tokenURL(tenant Tenant) string {
	return c.endpoint + "/" + tenant.ID + "/oauth2/token"
}

func (c *identityClient) deviceCodeURL(tenant Tenant) string {
	return c.endpoint + "/" + tenant.ID + "/oauth2/devicecode?api-version=" + deviceCodeAPIVersion
}

func (c *identityClient) postForm(ctx context.Context, rawURL string, form url.Values) (*transport.Response, error) {
	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.http.Execute(ctx, http.MethodPost, rawURL, header, []byte(form.Encode()))
}

func (c *identityClient) requestDeviceCode(ctx context.Context, tenant Tenant, clientID, resource string) (*deviceCodeResponse, error) {
	resp, err := c.postForm(ctx, c.deviceCodeURL(tenant), url.Values{
		"client_id": {clientID},
		"resource":  {resource},
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, rejection(resp)
	}
	if resp.Body == nil {
		return nil, fmt.Errorf("%w: empty device code response", ErrUnexpectedResponse)
	}

	var dc deviceCodeResponse
	if err := json.Unmarshal(resp.Body, &dc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	if dc.DeviceCode == "" || dc.Message == "" {
		return nil, fmt.Errorf("%w: device code response missing device_code or message", ErrUnexpectedResponse)
	}
	return &dc, nil
}

func (c *identityClient) redeemRefreshToken(ctx context.Context, tenant Tenant, clientID, resource, refreshToken string) (*transport.Response, error) {
	return c.postForm(ctx, c.tokenURL(tenant), url.Values{
		"grant_type":    {grantTypeRefreshToken},
		"client_id":     {clientID},
		"resource":      {resource},
		"refresh_token": {refreshToken},
	})
}

func (c *identityClient) redeemDeviceCode(ctx context.Context, tenant Tenant, clientID, resource, deviceCode string) (*transport.Response, error) {
	return c.postForm(ctx, c.tokenURL(tenant), url.Values{
		"grant_type": {grantTypeDeviceCode},
		"client_id":  {clientID},
		"resource":   {resource},
		"code":       {deviceCode},
	})
}

// rejection decodes an OAuth error body. Bodies that are not OAuth errors
// keep an empty Code.
func rejection(resp *transport.Response) *ServerRejectionError {
	rej := &ServerRejectionError{Status: resp.Status, Body: resp.Body}
	if resp.Body == nil {
		return rej
	}
	var body oauthErrorResponse
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		rej.Code = body.Error
		rej.Description = firstLine(body.Description)
	}
	return rej
}

// Azure AD appends trace and correlation ids to error_description on
// separate lines.
func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
