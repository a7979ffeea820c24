package auth

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// DefaultPollInterval is the wait between device code redemption attempts.
const DefaultPollInterval = 5 * time.Second

// TokenStore persists token sets between runs.
type TokenStore interface {
	Load() ([]TokenSet, error)
	Save(sets ...TokenSet) error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLoginEndpoint overrides the identity provider base URL.
func WithLoginEndpoint(endpoint string) EngineOption {
	return func(e *Engine) {
		e.idp.endpoint = strings.TrimSuffix(endpoint, "/")
	}
}

// WithPrompt sets where device code instructions are written. Defaults to stderr.
func WithPrompt(w io.Writer) EngineOption {
	return func(e *Engine) {
		e.prompt = w
	}
}

// WithSleeper replaces the wait between device code polls.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) {
		e.sleep = sleep
	}
}

// WithClock replaces the clock used for expiry checks.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the engine logger.
func WithLogger(log zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

// WithPollInterval sets the wait between device code polls.
func WithPollInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.pollInterval = d
	}
}

// Engine hands out access tokens for a tenant. It serves unexpired tokens
// from the cache, redeems cached refresh tokens, and falls back to the
// interactive device code flow. Acquisitions are serialized so that at most
// one device code prompt is ever shown at a time.
type Engine struct {
	mu           sync.Mutex
	tenant       Tenant
	tokenSets    []TokenSet
	store        TokenStore
	idp          *identityClient
	prompt       io.Writer
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
	pollInterval time.Duration
	log          zerolog.Logger
}

// NewEngine loads the token store and returns an engine for tenant. Failing
// to read the store is fatal; entries that cannot be decoded are not.
func NewEngine(tenant Tenant, store TokenStore, http HTTPExecutor, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		tenant:       tenant,
		store:        store,
		idp:          &identityClient{http: http, endpoint: DefaultLoginEndpoint},
		prompt:       os.Stderr,
		sleep:        sleepContext,
		now:          time.Now,
		pollInterval: DefaultPollInterval,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	sets, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load token cache: %w", err)
	}
	e.tokenSets = sets
	e.log.Debug().Str("tenant", tenant.ID).Int("token_sets", len(sets)).Msg("Initialized authentication engine")
	return e, nil
}

// Tenant returns the current tenant. A common tenant is replaced by the
// concrete tenant of the first token acquired through the device code flow.
func (e *Engine) Tenant() Tenant {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tenant
}

// TokenSets returns a snapshot of the in-memory token sets.
func (e *Engine) TokenSets() []TokenSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TokenSet(nil), e.tokenSets...)
}

// GetToken returns a token set for clientID and resource. An unexpired cached
// access token is returned as is. Otherwise a cached refresh token for the
// same client and tenant (for any resource) is redeemed, and if none exists
// or it is no longer valid, the device code flow runs.
func (e *Engine) GetToken(ctx context.Context, clientID, resource string) (*TokenSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	authority := e.tenant.Authority()
	if set, ok := e.findLocked(clientID, authority, resource); ok {
		if !set.AccessToken.IsExpiredAt(e.now()) {
			e.log.Trace().Str("resource", resource).Msg("Using cached access token")
			return &set, nil
		}
		e.log.Debug().Str("resource", resource).Msg("Cached access token expired, refreshing")
		return e.refreshLocked(ctx, clientID, resource, set.RefreshToken)
	}

	if set, ok := e.findLocked(clientID, authority, ""); ok {
		e.log.Debug().Str("resource", resource).Str("from", set.Resource).Msg("Redeeming refresh token for new resource")
		return e.refreshLocked(ctx, clientID, resource, set.RefreshToken)
	}

	e.log.Debug().Str("resource", resource).Msg("No cached refresh token")
	return e.deviceCodeLocked(ctx, clientID, resource)
}

// Refresh acquires a new access token even if the cached one has not
// expired. It is used when a resource server rejects a token early.
func (e *Engine) Refresh(ctx context.Context, clientID, resource string) (*TokenSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	authority := e.tenant.Authority()
	set, ok := e.findLocked(clientID, authority, resource)
	if !ok {
		set, ok = e.findLocked(clientID, authority, "")
	}
	if !ok {
		return e.deviceCodeLocked(ctx, clientID, resource)
	}
	e.log.Debug().Str("resource", resource).Msg("Forcing token refresh")
	return e.refreshLocked(ctx, clientID, resource, set.RefreshToken)
}

// TokenSource adapts the engine to golang.org/x/oauth2.
func (e *Engine) TokenSource(ctx context.Context, clientID, resource string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &engineTokenSource{ctx: ctx, engine: e, clientID: clientID, resource: resource})
}

type engineTokenSource struct {
	ctx      context.Context
	engine   *Engine
	clientID string
	resource string
}

func (s *engineTokenSource) Token() (*oauth2.Token, error) {
	set, err := s.engine.GetToken(s.ctx, s.clientID, s.resource)
	if err != nil {
		return nil, err
	}
	return set.OAuth2Token(), nil
}

// findLocked returns the first set issued to clientID by authority. An empty
// resource matches any resource.
func (e *Engine) findLocked(clientID, authority, resource string) (TokenSet, bool) {
	for _, set := range e.tokenSets {
		if set.AccessToken.AppID != clientID || set.AccessToken.Tenant.Authority() != authority {
			continue
		}
		if resource != "" && set.Resource != resource {
			continue
		}
		return set, true
	}
	return TokenSet{}, false
}

func (e *Engine) refreshLocked(ctx context.Context, clientID, resource, refreshToken string) (*TokenSet, error) {
	resp, err := e.idp.redeemRefreshToken(ctx, e.tenant, clientID, resource, refreshToken)
	if err != nil {
		return nil, err
	}
	if resp.IsSuccess() {
		return e.acceptLocked(resp.Body)
	}

	rej := rejection(resp)
	if rej.Code == errorInvalidGrant {
		e.log.Info().Str("reason", rej.Description).Msg("Refresh token is no longer valid, signing in again")
		return e.deviceCodeLocked(ctx, clientID, resource)
	}
	e.log.Debug().Int("status", rej.Status).Str("error", rej.Code).Msg("Refresh rejected")
	return nil, rej
}

func (e *Engine) deviceCodeLocked(ctx context.Context, clientID, resource string) (*TokenSet, error) {
	dc, err := e.idp.requestDeviceCode(ctx, e.tenant, clientID, resource)
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintln(e.prompt, dc.Message); err != nil {
		return nil, fmt.Errorf("failed to write sign-in instructions: %w", err)
	}

	for attempt := 1; ; attempt++ {
		if err := e.sleep(ctx, e.pollInterval); err != nil {
			return nil, err
		}

		resp, err := e.idp.redeemDeviceCode(ctx, e.tenant, clientID, resource, dc.DeviceCode)
		if err != nil {
			return nil, err
		}
		if resp.IsSuccess() {
			set, err := e.acceptLocked(resp.Body)
			if err != nil {
				return nil, err
			}
			if e.tenant.IsCommon() {
				e.log.Debug().Str("tenant", set.AccessToken.Tenant.ID).Msg("Resolved common tenant")
				e.tenant = set.AccessToken.Tenant
			}
			return set, nil
		}

		rej := rejection(resp)
		if rej.Code == errorAuthorizationPending {
			e.log.Trace().Int("attempt", attempt).Msg("Authorization pending")
			continue
		}
		e.log.Debug().Int("attempt", attempt).Str("error", rej.Code).Msg("Device code redemption failed")
		return nil, rej
	}
}

// acceptLocked decodes a token response, persists it and replaces any
// matching in-memory set.
func (e *Engine) acceptLocked(body []byte) (*TokenSet, error) {
	if body == nil {
		return nil, fmt.Errorf("%w: empty token response", ErrUnexpectedResponse)
	}
	set, err := tokenSetFromResponse(body, e.now())
	if err != nil {
		return nil, err
	}
	if set.ExpiresOn != set.AccessToken.ExpiresAt {
		e.log.Debug().
			Str("resource", set.Resource).
			Int64("expires_on", set.ExpiresOn).
			Int64("exp", set.AccessToken.ExpiresAt).
			Msg("Token response expiry does not match token exp claim")
	}

	if err := e.store.Save(*set); err != nil {
		return nil, fmt.Errorf("failed to update token cache: %w", err)
	}

	for i := range e.tokenSets {
		if e.tokenSets[i].Matches(set) {
			e.tokenSets[i] = *set
			return set, nil
		}
	}
	e.tokenSets = append(e.tokenSets, *set)
	return set, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

