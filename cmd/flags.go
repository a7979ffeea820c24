package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/azi/cli/internal/client"
	"github.com/azi/cli/internal/output"
)

const dateLayout = "2006-01-02"

// formatFlag holds an --output value. An unset flag defers to the config.
type formatFlag struct {
	format output.Format
	set    bool
}

var _ pflag.Value = (*formatFlag)(nil)

func (f *formatFlag) String() string {
	return f.format.String()
}

func (f *formatFlag) Set(s string) error {
	format, err := output.ParseFormat(s)
	if err != nil {
		return err
	}
	f.format = format
	f.set = s != ""
	return nil
}

func (f *formatFlag) Type() string {
	return "format"
}

// dateFlag accepts YYYY-MM-DD dates.
type dateFlag string

var _ pflag.Value = (*dateFlag)(nil)

func (d *dateFlag) String() string {
	return string(*d)
}

func (d *dateFlag) Set(s string) error {
	if s != "" {
		if _, err := time.Parse(dateLayout, s); err != nil {
			return fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s)
		}
	}
	*d = dateFlag(s)
	return nil
}

func (d *dateFlag) Type() string {
	return "date"
}

// addResourceFlag registers --resource, the audience a token is requested for.
func addResourceFlag(flags *pflag.FlagSet, p *string) {
	flags.StringVar(p, "resource", client.DefaultResource, "resource the access token is requested for")
}
