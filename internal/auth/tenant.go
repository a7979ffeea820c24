package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog"
)

const (
	// CommonTenantID is the multi-tenant sentinel accepted by the identity
	// provider before the user's directory is known.
	CommonTenantID = "common"

	// DefaultLoginEndpoint is the identity provider base URL. Authorities in
	// the token cache are always expressed against this host.
	DefaultLoginEndpoint = "https://login.microsoftonline.com"
)

var tenantIDPattern = regexp.MustCompile(`^[0-9a-fA-F-]{36}$`)

// Tenant identifies an authentication directory.
type Tenant struct {
	ID string
}

// Common returns the multi-tenant sentinel.
func Common() Tenant {
	return Tenant{ID: CommonTenantID}
}

// IsValidTenantID reports whether id is "common" or a 36-character directory id.
func IsValidTenantID(id string) bool {
	return id == CommonTenantID || tenantIDPattern.MatchString(id)
}

// TenantFromID validates id and returns the tenant.
func TenantFromID(id string) (Tenant, error) {
	if !IsValidTenantID(id) {
		return Tenant{}, fmt.Errorf("%w: %q", ErrInvalidTenantID, id)
	}
	return Tenant{ID: id}, nil
}

// TenantFromAuthority extracts the tenant from the path suffix of an
// authority URL such as https://login.microsoftonline.com/<id>.
func TenantFromAuthority(authority string) (Tenant, error) {
	pos := strings.LastIndex(authority, "/")
	if pos < 0 {
		return Tenant{}, fmt.Errorf("%w: %q", ErrInvalidAuthority, authority)
	}
	return TenantFromID(authority[pos+1:])
}

// Authority returns the authority URL used as the cache key for this tenant.
func (t Tenant) Authority() string {
	return DefaultLoginEndpoint + "/" + t.ID
}

// IsCommon reports whether the tenant is the multi-tenant sentinel.
func (t Tenant) IsCommon() bool {
	return t.ID == CommonTenantID
}

func (t Tenant) String() string {
	return t.ID
}

// TenantResolver turns human-readable tenant names (e.g. contoso.onmicrosoft.com)
// into directory ids through OIDC discovery.
type TenantResolver struct {
	loginEndpoint string
	httpClient    *http.Client
	log           zerolog.Logger
}

// NewTenantResolver creates a resolver. An empty loginEndpoint selects
// DefaultLoginEndpoint; a nil httpClient selects http.DefaultClient.
func NewTenantResolver(loginEndpoint string, httpClient *http.Client, log zerolog.Logger) *TenantResolver {
	if loginEndpoint == "" {
		loginEndpoint = DefaultLoginEndpoint
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TenantResolver{
		loginEndpoint: strings.TrimSuffix(loginEndpoint, "/"),
		httpClient:    httpClient,
		log:           log,
	}
}

// FromName resolves name to a tenant. Names that already have the shape of a
// tenant id are returned without a network call.
func (r *TenantResolver) FromName(ctx context.Context, name string) (Tenant, error) {
	if IsValidTenantID(name) {
		return Tenant{ID: name}, nil
	}

	issuerBase := r.loginEndpoint + "/" + url.PathEscape(name)
	if !strings.HasPrefix(issuerBase, "https://") {
		return Tenant{}, fmt.Errorf("refusing plaintext discovery request to %s", issuerBase)
	}

	r.log.Debug().Str("tenant", name).Msg("Resolving tenant through OIDC discovery")

	// The discovery document's issuer (https://sts.windows.net/<id>/) never
	// equals the URL it was fetched from, so issuer validation is relaxed.
	ctx = oidc.ClientContext(ctx, r.httpClient)
	ctx = oidc.InsecureIssuerURLContext(ctx, issuerBase)
	provider, err := oidc.NewProvider(ctx, issuerBase)
	if err != nil {
		return Tenant{}, fmt.Errorf("failed to discover tenant %q: %w", name, err)
	}

	var discovery struct {
		Issuer string `json:"issuer"`
	}
	if err := provider.Claims(&discovery); err != nil {
		return Tenant{}, fmt.Errorf("%w: %v", ErrInvalidIssuer, err)
	}

	id, err := tenantIDFromIssuer(discovery.Issuer)
	if err != nil {
		return Tenant{}, err
	}

	r.log.Debug().Str("tenant", name).Str("id", id).Msg("Resolved tenant")
	return Tenant{ID: id}, nil
}

func tenantIDFromIssuer(issuer string) (string, error) {
	if issuer == "" {
		return "", fmt.Errorf("%w: missing issuer", ErrInvalidIssuer)
	}
	u, err := url.Parse(issuer)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidIssuer, issuer)
	}
	id, _, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
	if !IsValidTenantID(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIssuer, issuer)
	}
	return id, nil
}
