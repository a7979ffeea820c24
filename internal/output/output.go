// Package output renders query results as text, JSON or YAML.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/azi/cli/internal/service"
)

// Format selects how results are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatText, FormatJSON, FormatYAML}

// ParseFormat validates a format name. An empty name selects FormatText.
func ParseFormat(name string) (Format, error) {
	if name == "" {
		return FormatText, nil
	}
	for _, f := range Formats {
		if strings.EqualFold(name, string(f)) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (expected text, json or yaml)", name)
}

// String returns the format name.
func (f Format) String() string {
	return string(f)
}

// Printer writes results to w in one format.
type Printer struct {
	w      io.Writer
	format Format
}

// New creates a printer.
func New(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format}
}

// Format returns the printer's format.
func (p *Printer) Format() Format {
	return p.format
}

// Structured writes v as indented JSON or YAML. In text format, JSON is used.
func (p *Printer) Structured(v any) error {
	if p.format == FormatYAML {
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Value writes a raw response body. Text format prints compact JSON on one
// line; JSON and YAML are indented.
func (p *Printer) Value(body json.RawMessage) error {
	switch p.format {
	case FormatText:
		var buf bytes.Buffer
		if err := json.Compact(&buf, body); err != nil {
			return fmt.Errorf("failed to format response: %w", err)
		}
		_, err := fmt.Fprintln(p.w, buf.String())
		return err
	case FormatYAML:
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return fmt.Errorf("failed to format response: %w", err)
		}
		return p.Structured(v)
	default:
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err != nil {
			return fmt.Errorf("failed to format response: %w", err)
		}
		_, err := fmt.Fprintln(p.w, buf.String())
		return err
	}
}

// List prints subscriptions, their resource groups and resources.
func (p *Printer) List(results []service.ListResult) error {
	if p.format != FormatText {
		return p.Structured(results)
	}

	for _, result := range results {
		fmt.Fprintln(p.w, result.Subscription.Name)
		for _, group := range result.ResourceGroups {
			fmt.Fprintf(p.w, "  %s\n", group.Name)
			for _, resource := range result.Resources {
				if strings.EqualFold(resource.ResourceGroup(), group.Name) {
					fmt.Fprintf(p.w, "    %s (%s)\n", resource.Name, resource.Type)
				}
			}
		}
	}
	return nil
}

// DNS prints every zone with its records.
func (p *Printer) DNS(results []service.DNSResult) error {
	if p.format != FormatText {
		return p.Structured(results)
	}

	for _, result := range results {
		fmt.Fprintln(p.w, result.Zone.Name)
		for _, record := range result.Records {
			fmt.Fprintf(p.w, "  %s\n", record.Name)
			for _, value := range record.Values {
				fmt.Fprintf(p.w, "    %s %s\n", record.Type, value)
			}
		}
	}
	return nil
}

// IPs prints public IP addresses per subscription and resource group.
func (p *Printer) IPs(results []service.IPResult) error {
	if p.format != FormatText {
		return p.Structured(results)
	}

	for _, result := range results {
		fmt.Fprintln(p.w, result.Subscription.Name)
		for _, group := range result.ResourceGroups {
			fmt.Fprintf(p.w, "  %s\n", group.ResourceGroup.Name)
			for _, address := range group.IPAddresses {
				fmt.Fprintf(p.w, "    %s\n", address.IPAddress)
			}
		}
	}
	return nil
}

// Costs prints costs per resource group with per-subscription sums and a
// grand total. The total uses the currency of the last subscription that
// had costs.
func (p *Printer) Costs(results []service.CostResult) error {
	if p.format != FormatText {
		return p.Structured(results)
	}

	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	var total float64
	var totalCurrency string

	for _, result := range results {
		fmt.Fprintln(w, result.Subscription.Name)
		for _, item := range result.Costs {
			fmt.Fprintf(w, "  %s\t%0.2f\t%s\n", item.ResourceGroup, item.Costs, item.Currency)
		}
		if result.Currency != "" {
			fmt.Fprintf(w, "  sum\t%0.2f\t%s\n", result.Total, result.Currency)
			total += result.Total
			totalCurrency = result.Currency
		}
	}
	if totalCurrency != "" {
		fmt.Fprintf(w, "total\t%0.2f\t%s\n", total, totalCurrency)
	}
	return w.Flush()
}
