package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azi/cli/internal/auth"
	"github.com/azi/cli/internal/transport"
)

type fakeTokens struct {
	gets      int
	refreshes int
	resources []string
	err       error
}

func (f *fakeTokens) GetToken(_ context.Context, clientID, resource string) (*auth.TokenSet, error) {
	f.gets++
	f.resources = append(f.resources, resource)
	if f.err != nil {
		return nil, f.err
	}
	return &auth.TokenSet{Resource: resource, AccessToken: auth.AccessToken{Raw: "token-1", AppID: clientID}}, nil
}

func (f *fakeTokens) Refresh(_ context.Context, clientID, resource string) (*auth.TokenSet, error) {
	f.refreshes++
	if f.err != nil {
		return nil, f.err
	}
	return &auth.TokenSet{Resource: resource, AccessToken: auth.AccessToken{Raw: "token-2", AppID: clientID}}, nil
}

type recordedRequest struct {
	method    string
	url       *url.URL
	header    http.Header
	body      string
	authToken string
}

type fakeARM struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses []func(w http.ResponseWriter)
}

func (f *fakeARM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	body, _ := io.ReadAll(r.Body)
	f.requests = append(f.requests, recordedRequest{
		method:    r.Method,
		url:       r.URL,
		header:    r.Header.Clone(),
		body:      string(body),
		authToken: r.Header.Get("Authorization"),
	})

	i := len(f.requests) - 1
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.responses[i](w)
}

func respond(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func armFailure(status int, code string) func(w http.ResponseWriter) {
	return respond(status, `{"error":{"code":"`+code+`","message":"token rejected"}}`)
}

func newTestClient(t *testing.T, tokens *fakeTokens, arm *fakeARM) (*Client, string) {
	t.Helper()
	server := httptest.NewTLSServer(arm)
	t.Cleanup(server.Close)

	httpClient, err := transport.New(transport.WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return New(tokens, httpClient), server.URL
}

func TestClient_ExecuteUnwrapsValue(t *testing.T) {
	tokens := &fakeTokens{}
	arm := &fakeARM{responses: []func(http.ResponseWriter){respond(http.StatusOK, `{"value":[{"name":"a"}],"nextLink":null}`)}}
	c, base := newTestClient(t, tokens, arm)

	body, err := c.Execute(context.Background(), Request{URL: base + "/subscriptions?api-version=2016-06-01"})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"a"}]`, string(body))

	require.Len(t, arm.requests, 1)
	req := arm.requests[0]
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "Bearer token-1", req.authToken)
	assert.Equal(t, "application/json", req.header.Get("Content-Type"))
	assert.Len(t, req.header.Get(requestIDHeader), 36)
	assert.Equal(t, []string{DefaultResource}, tokens.resources)
	assert.Zero(t, tokens.refreshes)
}

func TestClient_ExecuteWithoutValue(t *testing.T) {
	arm := &fakeARM{responses: []func(http.ResponseWriter){respond(http.StatusOK, `{"id":"/subscriptions/1","value":null}`)}}
	c, base := newTestClient(t, &fakeTokens{}, arm)

	body, err := c.Execute(context.Background(), Request{URL: base + "/subscriptions/1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"/subscriptions/1","value":null}`, string(body))
}

func TestClient_ExecuteRawKeepsEnvelope(t *testing.T) {
	arm := &fakeARM{responses: []func(http.ResponseWriter){respond(http.StatusOK, `{"value":[],"nextLink":"x"}`)}}
	c, base := newTestClient(t, &fakeTokens{}, arm)

	body, err := c.ExecuteRaw(context.Background(), Request{URL: base + "/subscriptions"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":[],"nextLink":"x"}`, string(body))
}

func TestClient_QueryAndBody(t *testing.T) {
	arm := &fakeARM{responses: []func(http.ResponseWriter){respond(http.StatusNoContent, ``)}}
	c, base := newTestClient(t, &fakeTokens{}, arm)

	body, err := c.Execute(context.Background(), Request{
		URL:      base + "/subscriptions/1/resources?api-version=2018-05-01",
		Resource: "https://vault.azure.net",
		Query:    url.Values{"$filter": {"resourceType eq 'Microsoft.Network/dnsZones'"}},
		Body:     []byte(`{"a":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "null", string(body))

	req := arm.requests[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "2018-05-01", req.url.Query().Get("api-version"))
	assert.Equal(t, "resourceType eq 'Microsoft.Network/dnsZones'", req.url.Query().Get("$filter"))
	assert.Equal(t, `{"a":1}`, req.body)
}

func TestClient_RetriesOnceAfterTokenRejection(t *testing.T) {
	for _, code := range []string{codeExpiredAuthenticationToken, codeAuthenticationFailed} {
		t.Run(code, func(t *testing.T) {
			tokens := &fakeTokens{}
			arm := &fakeARM{responses: []func(http.ResponseWriter){
				armFailure(http.StatusUnauthorized, code),
				respond(http.StatusOK, `{"value":["ok"]}`),
			}}
			c, base := newTestClient(t, tokens, arm)

			body, err := c.Execute(context.Background(), Request{URL: base + "/subscriptions"})
			require.NoError(t, err)
			assert.JSONEq(t, `["ok"]`, string(body))

			require.Len(t, arm.requests, 2)
			assert.Equal(t, "Bearer token-1", arm.requests[0].authToken)
			assert.Equal(t, "Bearer token-2", arm.requests[1].authToken)
			assert.NotEqual(t, arm.requests[0].header.Get(requestIDHeader), arm.requests[1].header.Get(requestIDHeader))
			assert.Equal(t, 1, tokens.refreshes)
		})
	}
}

func TestClient_SecondRejectionIsFinal(t *testing.T) {
	tokens := &fakeTokens{}
	arm := &fakeARM{responses: []func(http.ResponseWriter){armFailure(http.StatusUnauthorized, codeExpiredAuthenticationToken)}}
	c, base := newTestClient(t, tokens, arm)

	_, err := c.Execute(context.Background(), Request{URL: base + "/subscriptions"})

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusUnauthorized, respErr.Status)
	assert.Equal(t, codeExpiredAuthenticationToken, respErr.Code())
	assert.Len(t, arm.requests, 2)
	assert.Equal(t, 1, tokens.refreshes)
}

func TestClient_OtherErrorsAreNotRetried(t *testing.T) {
	tokens := &fakeTokens{}
	arm := &fakeARM{responses: []func(http.ResponseWriter){armFailure(http.StatusNotFound, "ResourceNotFound")}}
	c, base := newTestClient(t, tokens, arm)

	_, err := c.Execute(context.Background(), Request{URL: base + "/subscriptions/missing"})

	require.ErrorIs(t, err, ErrUnexpectedServerResponse)
	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, "ResourceNotFound", respErr.Code())
	assert.Equal(t, "token rejected", respErr.Message())
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Len(t, arm.requests, 1)
	assert.Zero(t, tokens.refreshes)
}

func TestClient_TokenFailurePropagates(t *testing.T) {
	tokens := &fakeTokens{err: &auth.ServerRejectionError{Status: http.StatusBadRequest, Code: "invalid_client"}}
	arm := &fakeARM{responses: []func(http.ResponseWriter){respond(http.StatusOK, `{}`)}}
	c, base := newTestClient(t, tokens, arm)

	_, err := c.Execute(context.Background(), Request{URL: base + "/subscriptions"})

	var rej *auth.ServerRejectionError
	require.ErrorAs(t, err, &rej)
	assert.Empty(t, arm.requests)
}

func TestClient_PlaintextRefused(t *testing.T) {
	c := New(&fakeTokens{}, mustTransport(t))

	_, err := c.Execute(context.Background(), Request{URL: "http://management.azure.com/subscriptions"})
	assert.True(t, errors.Is(err, transport.ErrPlaintext))
}

func mustTransport(t *testing.T) *transport.Client {
	t.Helper()
	c, err := transport.New()
	require.NoError(t, err)
	return c
}

func TestResponseError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ResponseError
		want string
	}{
		{
			name: "arm error",
			err:  &ResponseError{Status: 403, Body: json.RawMessage(`{"error":{"code":"AuthorizationFailed","message":"no access"}}`)},
			want: "unexpected server response (HTTP 403): AuthorizationFailed: no access",
		},
		{
			name: "other json",
			err:  &ResponseError{Status: 500, Body: json.RawMessage(`{"oops":true}`)},
			want: `unexpected server response (HTTP 500): {"oops":true}`,
		},
		{
			name: "no body",
			err:  &ResponseError{Status: 502},
			want: "unexpected server response (HTTP 502)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}
