package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/azi/cli/internal/auth"
	"github.com/azi/cli/internal/client"
	"github.com/azi/cli/internal/output"
	"github.com/azi/cli/internal/service"
	"github.com/azi/cli/internal/transport"
)

// AuthConfig controls where credentials come from and where they are cached.
type AuthConfig struct {
	// ClientID is the OAuth client tokens are requested for. It must stay the
	// Azure CLI's client id for tokens to be shared with the Azure CLI.
	ClientID string `toml:"client_id,omitempty"`

	// TokenFile overrides the token cache location ($AZURE_ACCESS_TOKEN_FILE
	// or ~/.azure/accessTokens.json).
	TokenFile string `toml:"token_file,omitempty"`

	// ProfileFile overrides the Azure CLI profile used to find the default tenant.
	ProfileFile string `toml:"profile_file,omitempty"`

	// LoginEndpoint is the identity provider base URL.
	LoginEndpoint string `toml:"login_endpoint,omitempty"`
}

// TokenFilePath returns the token cache location.
func (a *AuthConfig) TokenFilePath() (string, error) {
	if a.TokenFile != "" {
		return expandHome(a.TokenFile)
	}
	return auth.AccessTokenFilePath()
}

// ProfileFilePath returns the Azure CLI profile location.
func (a *AuthConfig) ProfileFilePath() (string, error) {
	if a.ProfileFile != "" {
		return expandHome(a.ProfileFile)
	}
	return auth.ProfilePath()
}

// HTTPConfig contains transport settings.
type HTTPConfig struct {
	// CAFile is an optional PEM bundle trusted in addition to the system roots.
	CAFile string `toml:"ca_file,omitempty"`

	// Timeout bounds each request (e.g., "30s").
	Timeout string `toml:"timeout,omitempty"`

	// ManagementEndpoint is the Resource Manager base URL relative requests
	// are resolved against.
	ManagementEndpoint string `toml:"management_endpoint,omitempty"`
}

// TimeoutDuration parses Timeout.
func (h *HTTPConfig) TimeoutDuration() (time.Duration, error) {
	if h.Timeout == "" {
		return transport.DefaultTimeout, nil
	}
	d, err := time.ParseDuration(h.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid http.timeout %q: %w", h.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid http.timeout %q: must be positive", h.Timeout)
	}
	return d, nil
}

// CAFilePath returns CAFile with a leading ~ expanded.
func (h *HTTPConfig) CAFilePath() (string, error) {
	if h.CAFile == "" {
		return "", nil
	}
	return expandHome(h.CAFile)
}

// Config represents the azi configuration
type Config struct {
	// Tenant is a tenant id or domain name. Empty means the Azure CLI's
	// default tenant, or "common" if there is none.
	Tenant string `toml:"tenant,omitempty"`

	// Output is the default output format: text, json or yaml.
	Output string `toml:"output,omitempty"`

	Auth AuthConfig `toml:"auth,omitempty"`
	HTTP HTTPConfig `toml:"http,omitempty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Output: output.FormatText.String(),
		Auth: AuthConfig{
			ClientID:      client.ClientID,
			LoginEndpoint: auth.DefaultLoginEndpoint,
		},
		HTTP: HTTPConfig{
			Timeout:            transport.DefaultTimeout.String(),
			ManagementEndpoint: service.DefaultEndpoint,
		},
	}
}

// Validate checks values that cannot be checked while decoding.
func (c *Config) Validate() error {
	if _, err := output.ParseFormat(c.Output); err != nil {
		return err
	}
	if _, err := c.HTTP.TimeoutDuration(); err != nil {
		return err
	}
	for name, endpoint := range map[string]string{
		"auth.login_endpoint":      c.Auth.LoginEndpoint,
		"http.management_endpoint": c.HTTP.ManagementEndpoint,
	} {
		if !strings.HasPrefix(endpoint, "https://") {
			return fmt.Errorf("invalid %s %q: must be an https URL", name, endpoint)
		}
	}
	return nil
}

// Load loads configuration from files, with the following precedence:
// 1. Local .azirc file (in current directory)
// 2. Global ~/.azirc config file
// 3. Default values
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Try global config first (lower precedence)
	globalPath, err := GlobalConfigPath()
	if err == nil {
		if data, err := os.ReadFile(globalPath); err == nil {
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", globalPath, err)
			}
		}
	}

	// Try local config (higher precedence, overwrites global)
	localPath := LocalConfigPath()
	if data, err := os.ReadFile(localPath); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", localPath, err)
		}
	}

	return cfg, nil
}

// LocalConfigPath returns the path to the local config file
func LocalConfigPath() string {
	return ".azirc"
}

// GlobalConfigPath returns the path to the global config file
func GlobalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, ".azirc"), nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
