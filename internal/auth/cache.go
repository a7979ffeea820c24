package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const (
	// AccessTokenFileEnv names an explicit token cache file.
	AccessTokenFileEnv = "AZURE_ACCESS_TOKEN_FILE"

	// ConfigDirEnv overrides the Azure CLI configuration directory (~/.azure).
	ConfigDirEnv = "AZURE_CONFIG_DIR"

	accessTokensFileName = "accessTokens.json"
	azureProfileFileName = "azureProfile.json"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ConfigDir returns the Azure CLI configuration directory.
func ConfigDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".azure"), nil
}

// AccessTokenFilePath returns the token cache location shared with the Azure CLI.
func AccessTokenFilePath() (string, error) {
	if path := os.Getenv(AccessTokenFileEnv); path != "" {
		return path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, accessTokensFileName), nil
}

// ProfilePath returns the location of the Azure CLI subscription profile.
func ProfilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, azureProfileFileName), nil
}

// CacheEntry is one element of the token cache file. The schema belongs to
// the Azure CLI and must not change.
type CacheEntry struct {
	ClientID     string `json:"_clientId"`
	Resource     string `json:"resource"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Authority    string `json:"_authority"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	ExpiresOn    string `json:"expiresOn"`
	UserID       string `json:"userId"`
	IsMRRT       bool   `json:"isMRRT"`
}

// newCacheEntry builds the entry written for a token set not yet in the file.
func newCacheEntry(set *TokenSet, now time.Time) CacheEntry {
	expiresIn := set.ExpiresOn - now.Unix()
	if expiresIn < 0 {
		expiresIn = 0
	}
	return CacheEntry{
		ClientID:     set.AccessToken.AppID,
		Resource:     set.Resource,
		AccessToken:  set.AccessToken.Raw,
		RefreshToken: set.RefreshToken,
		Authority:    set.AccessToken.Tenant.Authority(),
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		ExpiresOn:    formatCacheTime(set.ExpiresOn),
		UserID:       set.AccessToken.UniqueName,
		IsMRRT:       true,
	}
}

// cacheEntryFields is the lenient read-side view of a cache element.
type cacheEntryFields struct {
	ClientID     *string         `json:"_clientId"`
	Resource     *string         `json:"resource"`
	AccessToken  *string         `json:"accessToken"`
	RefreshToken *string         `json:"refreshToken"`
	Authority    *string         `json:"_authority"`
	ExpiresOn    *cacheTimestamp `json:"expiresOn"`
	UserID       *string         `json:"userId"`
}

// Cache reads and writes the token cache file. Every write is a fresh
// read-merge-write of the whole file; there is no inter-process lock, so a
// concurrent writer can lose one update but never corrupts the file.
type Cache struct {
	path string
	log  zerolog.Logger
	now  func() time.Time
}

// NewCache returns a cache backed by the file at path.
func NewCache(path string, log zerolog.Logger) *Cache {
	return &Cache{path: path, log: log, now: time.Now}
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Load reads all usable token sets. A missing file yields no sets. Elements
// that belong to other account types or fail to decode are skipped.
func (c *Cache) Load() ([]TokenSet, error) {
	elements, err := c.readArray()
	if err != nil {
		return nil, err
	}

	sets := make([]TokenSet, 0, len(elements))
	for i, element := range elements {
		set, err := c.decodeEntry(element)
		if err != nil {
			c.log.Debug().Err(err).Int("index", i).Msg("Skipping token cache entry")
			continue
		}
		sets = append(sets, *set)
	}

	c.log.Debug().Str("path", c.path).Int("entries", len(elements)).Int("usable", len(sets)).Msg("Read token cache")
	return sets, nil
}

func (c *Cache) decodeEntry(element json.RawMessage) (*TokenSet, error) {
	var fields cacheEntryFields
	if err := json.Unmarshal(element, &fields); err != nil {
		return nil, err
	}
	switch {
	case fields.ClientID == nil, fields.Resource == nil, fields.AccessToken == nil,
		fields.RefreshToken == nil, fields.Authority == nil:
		return nil, errors.New("entry is missing required fields")
	}

	authorityTenant, err := TenantFromAuthority(*fields.Authority)
	if err != nil {
		return nil, err
	}

	token, err := ParseAccessToken(*fields.AccessToken)
	if err != nil {
		return nil, err
	}

	if token.Tenant != authorityTenant {
		c.log.Warn().
			Err(ErrMismatchedTenantID).
			Str("authority", *fields.Authority).
			Str("tid", token.Tenant.ID).
			Msg("Token cache entry authority does not match token tenant")
	}

	expiresOn := token.ExpiresAt
	if fields.ExpiresOn != nil {
		expiresOn = fields.ExpiresOn.Time.Unix()
		if expiresOn != token.ExpiresAt {
			c.log.Debug().
				Str("resource", *fields.Resource).
				Int64("expires_on", expiresOn).
				Int64("exp", token.ExpiresAt).
				Msg("Token cache entry expiry does not match token exp claim")
		}
	}

	return &TokenSet{
		Resource:     *fields.Resource,
		AccessToken:  *token,
		RefreshToken: *fields.RefreshToken,
		ExpiresOn:    expiresOn,
	}, nil
}

// Save merges sets into the file. An element with the same authority, client
// id, resource and user id gets its access token, refresh token and expiry
// overwritten; otherwise a new element is appended. All other elements are
// written back unchanged.
func (c *Cache) Save(sets ...TokenSet) error {
	elements, err := c.readArray()
	if errors.Is(err, errNotArray) {
		c.log.Warn().Str("path", c.path).Msg("Token cache is not a JSON array, skipping update")
		return nil
	}
	if err != nil {
		return err
	}

	for i := range sets {
		entry := newCacheEntry(&sets[i], c.now())
		updated, err := mergeEntry(elements, &entry)
		if err != nil {
			return err
		}
		if updated {
			c.log.Debug().Str("resource", entry.Resource).Str("user", entry.UserID).Msg("Updated token")
			continue
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal token cache entry: %w", err)
		}
		elements = append(elements, data)
		c.log.Debug().Str("resource", entry.Resource).Str("user", entry.UserID).Msg("Added new token")
	}

	if elements == nil {
		elements = []json.RawMessage{}
	}
	data, err := json.Marshal(elements)
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}
	if err := c.write(data); err != nil {
		return err
	}

	c.log.Debug().Str("path", c.path).Msg("Updated access token file")
	return nil
}

// mergeEntry overwrites the mutable fields of every element matching entry.
func mergeEntry(elements []json.RawMessage, entry *CacheEntry) (bool, error) {
	updated := false
	for i, element := range elements {
		var object map[string]json.RawMessage
		if err := json.Unmarshal(element, &object); err != nil || object == nil {
			continue
		}
		if !matchesKey(object, entry) {
			continue
		}

		for key, value := range map[string]string{
			"accessToken":  entry.AccessToken,
			"refreshToken": entry.RefreshToken,
			"expiresOn":    entry.ExpiresOn,
		} {
			encoded, err := json.Marshal(value)
			if err != nil {
				return false, err
			}
			object[key] = encoded
		}

		data, err := json.Marshal(object)
		if err != nil {
			return false, fmt.Errorf("failed to marshal token cache entry: %w", err)
		}
		elements[i] = data
		updated = true
	}
	return updated, nil
}

func matchesKey(object map[string]json.RawMessage, entry *CacheEntry) bool {
	return stringField(object, "_authority") == entry.Authority &&
		stringField(object, "_clientId") == entry.ClientID &&
		stringField(object, "resource") == entry.Resource &&
		stringField(object, "userId") == entry.UserID
}

func stringField(object map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := object[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

var errNotArray = errors.New("token cache is not a JSON array")

// readArray returns the top-level elements of the cache file, or nil when the
// file does not exist or is empty.
func (c *Cache) readArray() ([]json.RawMessage, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.log.Debug().Str("path", c.path).Msg("Token cache not found")
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrCacheIO, c.path, err)
	}

	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", ErrCacheIO, c.path)
	}
	if data[0] != '[' {
		return nil, errNotArray
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrCacheIO, c.path, err)
	}
	return elements, nil
}

// write replaces the cache file through a temporary file in the same
// directory so that readers never observe a partial write.
func (c *Cache) write(data []byte) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: failed to create cache directory: %v", ErrCacheIO, err)
	}

	perm := fs.FileMode(0600)
	if info, err := os.Stat(c.path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temporary file: %v", ErrCacheIO, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to write token cache: %v", ErrCacheIO, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: failed to set token cache permissions: %v", ErrCacheIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to write token cache: %v", ErrCacheIO, err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("%w: failed to replace token cache: %v", ErrCacheIO, err)
	}
	return nil
}
