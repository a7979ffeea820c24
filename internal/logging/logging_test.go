package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		trace bool
		want  zerolog.Level
	}{
		{name: "default", want: zerolog.WarnLevel},
		{name: "debug", debug: true, want: zerolog.DebugLevel},
		{name: "trace", trace: true, want: zerolog.TraceLevel},
		{name: "trace wins", debug: true, trace: true, want: zerolog.TraceLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Level(tt.debug, tt.trace); got != tt.want {
				t.Errorf("Level(%v, %v) = %v, want %v", tt.debug, tt.trace, got, tt.want)
			}
		})
	}
}

func TestNew_WritesJSONWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, zerolog.DebugLevel)

	log.Trace().Msg("hidden")
	log.Debug().Str("tenant", "common").Msg("visible")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected exactly one JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "visible" {
		t.Errorf("message = %v, want visible", entry["message"])
	}
	if entry["tenant"] != "common" {
		t.Errorf("tenant = %v, want common", entry["tenant"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("log line has no timestamp")
	}
}
