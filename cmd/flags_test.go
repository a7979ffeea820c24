package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/azi/cli/internal/output"
	"github.com/azi/cli/internal/service"
)

func TestFormatFlag_Set(t *testing.T) {
	tests := []struct {
		input   string
		want    output.Format
		wantSet bool
		wantErr bool
	}{
		{"json", output.FormatJSON, true, false},
		{"YAML", output.FormatYAML, true, false},
		{"text", output.FormatText, true, false},
		{"", output.FormatText, false, false},
		{"xml", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var f formatFlag
			err := f.Set(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if f.format != tt.want {
				t.Errorf("format = %q, want %q", f.format, tt.want)
			}
			if f.set != tt.wantSet {
				t.Errorf("set = %v, want %v", f.set, tt.wantSet)
			}
		})
	}
}

func TestDateFlag_Set(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"2024-01-31", false},
		{"", false},
		{"2024-02-30", true},
		{"31.01.2024", true},
		{"2024-01-31T00:00:00Z", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d dateFlag
			err := d.Set(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && d.String() != tt.input {
				t.Errorf("String() = %q, want %q", d.String(), tt.input)
			}
		})
	}
}

func TestCostsTimeframe(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		want    service.Timeframe
		wantErr string
	}{
		{name: "month to date"},
		{name: "custom", from: "2024-01-01", to: "2024-01-31", want: service.Timeframe{From: "2024-01-01", To: "2024-01-31"}},
		{name: "single day", from: "2024-01-01", to: "2024-01-01", want: service.Timeframe{From: "2024-01-01", To: "2024-01-01"}},
		{name: "from only", from: "2024-01-01", wantErr: "must be used together"},
		{name: "to only", to: "2024-01-31", wantErr: "must be used together"},
		{name: "reversed", from: "2024-02-01", to: "2024-01-01", wantErr: "is after"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			costsFlags.from = dateFlag(tt.from)
			costsFlags.to = dateFlag(tt.to)
			t.Cleanup(func() {
				costsFlags.from = ""
				costsFlags.to = ""
			})

			got, err := costsTimeframe()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("costsTimeframe() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("costsTimeframe() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("costsTimeframe() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCostsCmd_RejectsInvalidDate(t *testing.T) {
	_, _, err := executeCommand(t, "costs", "--from", "yesterday", "--to", "2024-01-31")
	if err == nil {
		t.Fatal("expected error for invalid date")
	}
	if !strings.Contains(err.Error(), "expected YYYY-MM-DD") {
		t.Errorf("error = %q", err)
	}
}

func TestReadData(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "body.json")
	if err := os.WriteFile(file, []byte(`{"type":"Usage"}`), 0600); err != nil {
		t.Fatalf("failed to write body: %v", err)
	}

	tests := []struct {
		name    string
		value   string
		stdin   string
		want    string
		wantNil bool
		wantErr bool
	}{
		{name: "empty", value: "", wantNil: true},
		{name: "inline", value: `{"a":1}`, want: `{"a":1}`},
		{name: "file", value: "@" + file, want: `{"type":"Usage"}`},
		{name: "stdin", value: "-", stdin: `[1,2]`, want: `[1,2]`},
		{name: "missing file", value: "@" + filepath.Join(dir, "missing.json"), wantErr: true},
		{name: "not json", value: "a=1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readData(tt.value, strings.NewReader(tt.stdin))
			if (err != nil) != tt.wantErr {
				t.Fatalf("readData() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("readData() = %q, want nil", got)
				}
				return
			}
			if string(got) != tt.want {
				t.Errorf("readData() = %q, want %q", got, tt.want)
			}
		})
	}
}
