package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// DefaultExpiration is assumed when the identity provider omits both
// expires_on and expires_in.
const DefaultExpiration = time.Hour

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// AccessToken holds the claims of a bearer token that the cache and the
// engine key on. Claims are decoded without signature verification; the
// resource server verifies the token.
type AccessToken struct {
	Raw        string
	ExpiresAt  int64
	AppID      string
	ObjectID   string
	UniqueName string
	Tenant     Tenant
}

type accessTokenClaims struct {
	jwt.RegisteredClaims
	AppID      *string `json:"appid"`
	ObjectID   *string `json:"oid"`
	UniqueName *string `json:"unique_name"`
	TenantID   *string `json:"tid"`
}

// ParseAccessToken decodes the payload of a dot-delimited token. The payload
// is the text between the first and the last dot, or everything after the
// only dot when there is just one.
func ParseAccessToken(raw string) (*AccessToken, error) {
	start := strings.Index(raw, ".")
	if start < 0 {
		return nil, fmt.Errorf("%w: no segment delimiter", ErrInvalidToken)
	}
	end := strings.LastIndex(raw, ".")
	segment := raw[start+1:]
	if end > start {
		segment = raw[start+1 : end]
	}

	payload, err := segmentParser.DecodeSegment(segment)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode payload: %v", ErrInvalidToken, err)
	}

	var claims accessTokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedClaims, err)
	}
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing exp", ErrUnexpectedClaims)
	}
	required := []struct {
		name  string
		value *string
	}{
		{"appid", claims.AppID},
		{"oid", claims.ObjectID},
		{"unique_name", claims.UniqueName},
		{"tid", claims.TenantID},
	}
	for _, claim := range required {
		if claim.value == nil {
			return nil, fmt.Errorf("%w: missing %s", ErrUnexpectedClaims, claim.name)
		}
	}

	tenant, err := TenantFromID(*claims.TenantID)
	if err != nil {
		return nil, err
	}

	return &AccessToken{
		Raw:        raw,
		ExpiresAt:  claims.ExpiresAt.Unix(),
		AppID:      *claims.AppID,
		ObjectID:   *claims.ObjectID,
		UniqueName: *claims.UniqueName,
		Tenant:     tenant,
	}, nil
}

// ExpiryTime returns the exp claim as a time.Time.
func (t *AccessToken) ExpiryTime() time.Time {
	return time.Unix(t.ExpiresAt, 0)
}

// IsExpired returns true if exp is in the past.
func (t *AccessToken) IsExpired() bool {
	return t.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if exp is before now.
func (t *AccessToken) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiryTime())
}

// TokenSet is one cached credential: an access token for a resource and the
// refresh token that can mint tokens for other resources of the same user.
type TokenSet struct {
	Resource     string
	AccessToken  AccessToken
	RefreshToken string
	ExpiresOn    int64
}

type tokenResponse struct {
	AccessToken  *string      `json:"access_token"`
	RefreshToken *string      `json:"refresh_token"`
	Resource     *string      `json:"resource"`
	TokenType    string       `json:"token_type"`
	ExpiresOn    epochSeconds `json:"expires_on"`
	ExpiresIn    epochSeconds `json:"expires_in"`
}

// TokenSetFromResponse decodes a successful token endpoint response.
func TokenSetFromResponse(body []byte) (*TokenSet, error) {
	return tokenSetFromResponse(body, time.Now())
}

func tokenSetFromResponse(body []byte, now time.Time) (*TokenSet, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	switch {
	case resp.AccessToken == nil:
		return nil, fmt.Errorf("%w: missing access_token", ErrUnexpectedResponse)
	case resp.RefreshToken == nil:
		return nil, fmt.Errorf("%w: missing refresh_token", ErrUnexpectedResponse)
	case resp.Resource == nil:
		return nil, fmt.Errorf("%w: missing resource", ErrUnexpectedResponse)
	}

	accessToken, err := ParseAccessToken(*resp.AccessToken)
	if err != nil {
		return nil, err
	}

	var expiresOn int64
	switch {
	case resp.ExpiresOn.Set:
		expiresOn = resp.ExpiresOn.Value
	case resp.ExpiresIn.Set:
		expiresOn = now.Unix() + resp.ExpiresIn.Value
	default:
		expiresOn = now.Add(DefaultExpiration).Unix()
	}

	return &TokenSet{
		Resource:     *resp.Resource,
		AccessToken:  *accessToken,
		RefreshToken: *resp.RefreshToken,
		ExpiresOn:    expiresOn,
	}, nil
}

// Matches reports whether other is the same logical credential: same tenant,
// application, resource and user.
func (s *TokenSet) Matches(other *TokenSet) bool {
	return s.AccessToken.Tenant == other.AccessToken.Tenant &&
		s.AccessToken.AppID == other.AccessToken.AppID &&
		s.Resource == other.Resource &&
		s.AccessToken.UniqueName == other.AccessToken.UniqueName
}

// IsExpired returns true if the access token has expired.
func (s *TokenSet) IsExpired() bool {
	return s.AccessToken.IsExpired()
}

// OAuth2Token converts the set for use with golang.org/x/oauth2 transports.
func (s *TokenSet) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken.Raw,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       time.Unix(s.ExpiresOn, 0),
	}
}
