package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ExecuteRefusesPlaintext(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	for _, rawURL := range []string{
		"http://example.com/",
		"HTTP://example.com/",
		"ftp://example.com/file",
		"ws://example.com/socket",
		"example.com/subscriptions",
		"//example.com/subscriptions",
	} {
		t.Run(rawURL, func(t *testing.T) {
			_, err := c.Get(context.Background(), rawURL)
			assert.ErrorIs(t, err, ErrPlaintext)
		})
	}
}

func TestClient_ExecuteTraceRedactsTokens(t *testing.T) {
	previous := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	t.Cleanup(func() { zerolog.SetGlobalLevel(previous) })

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"token_type":"Bearer","access_token":"SECRET-ACCESS","refresh_token":"SECRET-REFRESH","id_token":"SECRET-ID","resource":"https://management.core.windows.net/"}`)
	}))
	defer server.Close()

	var logs bytes.Buffer
	c, err := New(WithHTTPClient(server.Client()), WithLogger(zerolog.New(&logs).Level(zerolog.TraceLevel)))
	require.NoError(t, err)

	resp, err := c.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "SECRET-REFRESH", "the caller still gets the token")

	assert.NotContains(t, logs.String(), "SECRET-")
	assert.Contains(t, logs.String(), "<redacted>")
	assert.Contains(t, logs.String(), "management.core.windows.net", "other members are still logged")
}

func TestRedactBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "nil", want: "null"},
		{name: "no secrets", body: `{"value":[]}`, want: `{"value":[]}`},
		{name: "array", body: `[{"access_token":"x"}]`, want: `[{"access_token":"x"}]`},
		{name: "refresh token", body: `{"refresh_token":"x","resource":"r"}`, want: `{"refresh_token":"<redacted>","resource":"r"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body json.RawMessage
			if tt.body != "" {
				body = json.RawMessage(tt.body)
			}
			assert.JSONEq(t, tt.want, string(redactBody(body)))
		})
	}
}

func TestClient_Execute(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantBody   string
		wantOK     bool
		wantStatus int
	}{
		{name: "json success", status: http.StatusOK, body: `{"a": 1}`, wantBody: `{"a": 1}`, wantOK: true},
		{name: "json error", status: http.StatusBadRequest, body: `{"error":"invalid_grant"}`, wantBody: `{"error":"invalid_grant"}`},
		{name: "empty body", status: http.StatusNoContent, wantOK: true},
		{name: "html body", status: http.StatusBadGateway, body: `<html>bad gateway</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			c, err := New(WithHTTPClient(server.Client()))
			require.NoError(t, err)

			resp, err := c.Get(context.Background(), server.URL)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.wantOK, resp.IsSuccess())
			if tt.wantBody == "" {
				assert.Nil(t, resp.Body)
			} else {
				assert.JSONEq(t, tt.wantBody, string(resp.Body))
			}
		})
	}
}

func TestClient_PostForm(t *testing.T) {
	var got url.Values
	var contentType, accept string
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		accept = r.Header.Get("Accept")
		_ = r.ParseForm()
		got = r.PostForm
		_, _ = io.WriteString(w, `{}`)
	}))
	defer server.Close()

	c, err := New(WithHTTPClient(server.Client()))
	require.NoError(t, err)

	_, err = c.PostForm(context.Background(), server.URL, url.Values{"resource": {"https://management.core.windows.net/"}})
	require.NoError(t, err)
	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, "application/json", accept)
	assert.Equal(t, "https://management.core.windows.net/", got.Get("resource"))
}

func TestWithCAFile(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer server.Close()

	caPath := filepath.Join(t.TempDir(), "ca.pem")
	block := &pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw}
	require.NoError(t, os.WriteFile(caPath, pem.EncodeToMemory(block), 0600))

	c, err := New(WithCAFile(caPath), WithTimeout(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.HTTPClient().Timeout)

	resp, err := c.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())
}

func TestWithCAFile_Invalid(t *testing.T) {
	_, err := New(WithCAFile(filepath.Join(t.TempDir(), "missing.pem")))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "empty.pem")
	require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0600))
	_, err = New(WithCAFile(path))
	assert.ErrorContains(t, err, "no certificates found")
}
