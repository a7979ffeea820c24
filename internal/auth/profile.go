package auth

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"
)

type azureProfile struct {
	Subscriptions []struct {
		IsDefault bool   `json:"isDefault"`
		TenantID  string `json:"tenantId"`
	} `json:"subscriptions"`
}

// ReadDefaultTenant looks up the tenant of the default subscription in the
// Azure CLI profile. When the profile has none, a token cache holding exactly
// one entry for a concrete tenant is used instead. Missing or malformed files
// are treated as "no default"; this never fails.
func ReadDefaultTenant(profilePath, tokenPath string, log zerolog.Logger) (Tenant, bool) {
	if tenant, ok := defaultTenantFromProfile(profilePath); ok {
		log.Debug().Str("path", profilePath).Str("tenant", tenant.ID).Msg("Read default tenant")
		return tenant, true
	}
	if tenant, ok := defaultTenantFromTokens(tokenPath); ok {
		log.Debug().Str("path", tokenPath).Str("tenant", tenant.ID).Msg("Read default tenant")
		return tenant, true
	}
	return Tenant{}, false
}

func defaultTenantFromProfile(path string) (Tenant, bool) {
	data, ok := readLenientJSON(path)
	if !ok {
		return Tenant{}, false
	}

	var profile azureProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return Tenant{}, false
	}
	for _, subscription := range profile.Subscriptions {
		if !subscription.IsDefault {
			continue
		}
		if tenant, err := TenantFromID(subscription.TenantID); err == nil && !tenant.IsCommon() {
			return tenant, true
		}
	}
	return Tenant{}, false
}

func defaultTenantFromTokens(path string) (Tenant, bool) {
	data, ok := readLenientJSON(path)
	if !ok {
		return Tenant{}, false
	}

	var entries []struct {
		Authority string `json:"_authority"`
	}
	if err := json.Unmarshal(data, &entries); err != nil || len(entries) != 1 {
		return Tenant{}, false
	}

	prefix := DefaultLoginEndpoint + "/"
	if !strings.HasPrefix(entries[0].Authority, prefix) {
		return Tenant{}, false
	}
	id := strings.TrimPrefix(entries[0].Authority, prefix)
	if !tenantIDPattern.MatchString(id) {
		return Tenant{}, false
	}
	return Tenant{ID: id}, true
}

// readLenientJSON reads a file written by another tool, tolerating a BOM,
// comments and trailing commas.
func readLenientJSON(path string) ([]byte, bool) {
	if path == "" {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return jsonc.ToJSON(bytes.TrimPrefix(data, utf8BOM)), true
}
