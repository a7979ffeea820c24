package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// azureCLITimeLayout is the local-time layout the Azure CLI writes to expiresOn.
const azureCLITimeLayout = "2006-01-02 15:04:05.999999"

// epochSeconds decodes a JSON number or a numeric string.
type epochSeconds struct {
	Value int64
	Set   bool
}

func (e *epochSeconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}

	v, err := parseEpoch(s)
	if err != nil {
		return err
	}
	e.Value = v
	e.Set = true
	return nil
}

func parseEpoch(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not an epoch timestamp: %q", s)
	}
	return int64(f), nil
}

// cacheTimestamp decodes the expiresOn field of a cache entry, which other
// writers store as epoch seconds (number or string), RFC3339, or the Azure
// CLI's local-time layout.
type cacheTimestamp struct {
	Time time.Time
}

func (c *cacheTimestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] != '"' {
		v, err := parseEpoch(string(data))
		if err != nil {
			return err
		}
		c.Time = time.Unix(v, 0)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := parseCacheTime(s)
	if err != nil {
		return err
	}
	c.Time = t
	return nil
}

func parseCacheTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if v, err := parseEpoch(s); err == nil {
		return time.Unix(v, 0), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(azureCLITimeLayout, s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp: %q", s)
}

func formatCacheTime(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format(time.RFC3339)
}
