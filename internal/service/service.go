// Package service implements the read-only Azure Resource Manager queries of
// the CLI on top of the authenticated request executor.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/azi/cli/internal/client"
	"github.com/azi/cli/internal/transport"
)

const (
	// DefaultEndpoint is the Azure Resource Manager base URL. Relative
	// requests are resolved against it.
	DefaultEndpoint = "https://management.azure.com/"

	// TypeDNSZone is the resource type of DNS zones.
	TypeDNSZone = "Microsoft.Network/dnsZones"

	apiVersionSubscriptions  = "2016-06-01"
	apiVersionResources      = "2018-05-01"
	apiVersionPublicIPs      = "2018-11-01"
	apiVersionDNS            = "2018-03-01-preview"
	apiVersionCostManagement = "2019-01-01"
)

// ErrUnexpectedPayload is returned when a successful response does not have
// the expected shape.
var ErrUnexpectedPayload = errors.New("unexpected response payload")

// Executor sends authenticated ARM requests. *client.Client implements it.
type Executor interface {
	Execute(ctx context.Context, req client.Request) (json.RawMessage, error)
	ExecuteRaw(ctx context.Context, req client.Request) (json.RawMessage, error)
}

// Fetcher sends unauthenticated requests to hosts outside Azure.
// *transport.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*transport.Response, error)
	Post(ctx context.Context, rawURL string, body []byte) (*transport.Response, error)
}

// Option configures a Service.
type Option func(*Service)

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(s *Service) {
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		s.endpoint = endpoint
	}
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// Service runs ARM queries.
type Service struct {
	client   Executor
	http     Fetcher
	endpoint string
	log      zerolog.Logger
}

// New creates a service. Azure requests go through c, everything else
// through http without credentials.
func New(c Executor, http Fetcher, opts ...Option) *Service {
	s := &Service{
		client:   c,
		http:     http,
		endpoint: DefaultEndpoint,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get executes a GET request. request is either an absolute https URL or a
// path relative to the management endpoint, e.g.
// "subscriptions?api-version=2016-06-01". An empty resource selects the ARM
// audience.
func (s *Service) Get(ctx context.Context, request, resource string) (json.RawMessage, error) {
	target := s.resolve(request)
	authenticated, err := s.isAzure(target)
	if err != nil {
		return nil, err
	}
	if authenticated {
		return s.client.Execute(ctx, client.Request{URL: target, Resource: resource})
	}

	s.log.Debug().Str("url", target).Msg("Host is not part of Azure, sending request without credentials")
	resp, err := s.http.Get(ctx, target)
	return unauthenticatedResult(resp, err)
}

// Post executes a POST request with a JSON body. See Get for request.
func (s *Service) Post(ctx context.Context, request, resource string, body []byte) (json.RawMessage, error) {
	if body == nil {
		body = []byte{}
	}
	target := s.resolve(request)
	authenticated, err := s.isAzure(target)
	if err != nil {
		return nil, err
	}
	if authenticated {
		return s.client.Execute(ctx, client.Request{URL: target, Resource: resource, Method: "POST", Body: body})
	}

	s.log.Debug().Str("url", target).Msg("Host is not part of Azure, sending request without credentials")
	resp, err := s.http.Post(ctx, target, body)
	return unauthenticatedResult(resp, err)
}

func unauthenticatedResult(resp *transport.Response, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, &client.ResponseError{Status: resp.Status, Body: resp.Body}
	}
	if resp.Body == nil {
		return json.RawMessage("null"), nil
	}
	return resp.Body, nil
}

func (s *Service) resolve(request string) string {
	if strings.HasPrefix(request, "https://") || strings.HasPrefix(request, "http://") {
		return request
	}
	return s.endpoint + strings.TrimPrefix(request, "/")
}

// isAzure reports whether target may receive a bearer token: azure.com,
// any of its subdomains, or the configured management host.
func (s *Service) isAzure(target string) (bool, error) {
	u, err := url.Parse(target)
	if err != nil {
		return false, fmt.Errorf("invalid request URL %q: %w", target, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "azure.com" || strings.HasSuffix(host, ".azure.com") {
		return true, nil
	}
	if endpoint, err := url.Parse(s.endpoint); err == nil && strings.EqualFold(endpoint.Hostname(), host) {
		return true, nil
	}
	return false, nil
}

func (s *Service) managementURL(format string, args ...any) string {
	return s.endpoint + fmt.Sprintf(format, args...)
}

type page[T any] struct {
	Value    *[]T   `json:"value"`
	NextLink string `json:"nextLink"`
}

// list collects every item of a paged ARM list operation.
func list[T any](ctx context.Context, s *Service, req client.Request) ([]T, error) {
	var items []T
	for {
		body, err := s.client.ExecuteRaw(ctx, req)
		if err != nil {
			return nil, err
		}

		var p page[T]
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
		}
		if p.Value == nil {
			return nil, fmt.Errorf("%w: response is not a list", ErrUnexpectedPayload)
		}
		items = append(items, *p.Value...)

		if p.NextLink == "" {
			return items, nil
		}
		s.log.Trace().Str("next", p.NextLink).Int("items", len(items)).Msg("Following next link")
		req = client.Request{URL: p.NextLink, Resource: req.Resource}
	}
}

// Subscriptions lists the subscriptions of the signed-in user, sorted by name.
func (s *Service) Subscriptions(ctx context.Context) ([]Subscription, error) {
	subscriptions, err := list[Subscription](ctx, s, client.Request{
		URL: s.managementURL("subscriptions?api-version=%s", apiVersionSubscriptions),
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(subscriptions, func(a, b Subscription) int {
		return strings.Compare(a.Name, b.Name)
	})
	return subscriptions, nil
}

func (s *Service) ResourceGroups(ctx context.Context, subscriptionID string) ([]ResourceGroup, error) {
	return list[ResourceGroup](ctx, s, client.Request{
		URL: s.managementURL("subscriptions/%s/resourcegroups?api-version=%s", subscriptionID, apiVersionResources),
	})
}

func (s *Service) Resources(ctx context.Context, subscriptionID string) ([]Resource, error) {
	return list[Resource](ctx, s, client.Request{
		URL: s.managementURL("subscriptions/%s/resources?api-version=%s", subscriptionID, apiVersionResources),
	})
}

// ResourcesByType lists the resources of one type using a server-side filter.
func (s *Service) ResourcesByType(ctx context.Context, subscriptionID, resourceType string) ([]Resource, error) {
	return list[Resource](ctx, s, client.Request{
		URL:   s.managementURL("subscriptions/%s/resources?api-version=%s", subscriptionID, apiVersionResources),
		Query: url.Values{"$filter": {fmt.Sprintf("resourceType eq '%s'", resourceType)}},
	})
}

type publicIPAddress struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Properties struct {
		IPAddress string `json:"ipAddress"`
	} `json:"properties"`
}

// IPAddresses lists the allocated public IP addresses of a subscription.
// Addresses that are not allocated yet are skipped.
func (s *Service) IPAddresses(ctx context.Context, subscriptionID string) ([]IPAddress, error) {
	rows, err := list[publicIPAddress](ctx, s, client.Request{
		URL: s.managementURL("subscriptions/%s/providers/Microsoft.Network/publicIPAddresses?api-version=%s", subscriptionID, apiVersionPublicIPs),
	})
	if err != nil {
		return nil, err
	}

	addresses := make([]IPAddress, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" || row.Name == "" || row.Properties.IPAddress == "" {
			s.log.Trace().Str("id", row.ID).Msg("Skipping public IP without address")
			continue
		}
		addresses = append(addresses, IPAddress{ID: row.ID, Name: row.Name, IPAddress: row.Properties.IPAddress})
	}
	return addresses, nil
}

type recordSet struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Properties struct {
		ARecords []struct {
			IPv4Address string `json:"ipv4Address"`
		} `json:"ARecords"`
		CNAMERecord *struct {
			CNAME string `json:"cname"`
		} `json:"CNAMERecord"`
	} `json:"properties"`
}

// DNSRecords lists the A and CNAME record sets of a zone. Other record types
// are skipped.
func (s *Service) DNSRecords(ctx context.Context, subscriptionID, resourceGroup, zone string) ([]DNSRecord, error) {
	rows, err := list[recordSet](ctx, s, client.Request{
		URL: s.managementURL("subscriptions/%s/resourceGroups/%s/providers/Microsoft.Network/dnsZones/%s/recordsets?api-version=%s",
			subscriptionID, resourceGroup, zone, apiVersionDNS),
	})
	if err != nil {
		return nil, err
	}

	records := make([]DNSRecord, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" || row.Name == "" {
			s.log.Trace().Str("id", row.ID).Msg("Skipping record set without id or name")
			continue
		}

		fqdn := row.Name + "." + zone
		if row.Name == "@" {
			fqdn = zone
		}
		record := DNSRecord{ID: row.ID, Name: row.Name, FQDN: fqdn}

		switch {
		case row.Properties.ARecords != nil:
			record.Type = RecordTypeA
			for _, a := range row.Properties.ARecords {
				if a.IPv4Address != "" {
					record.Values = append(record.Values, a.IPv4Address)
				}
			}
		case row.Properties.CNAMERecord != nil && row.Properties.CNAMERecord.CNAME != "":
			record.Type = RecordTypeCNAME
			record.Values = []string{row.Properties.CNAMERecord.CNAME}
		default:
			s.log.Trace().Str("id", row.ID).Msg("Skipping record set of unsupported type")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

type costQuery struct {
	Type       string          `json:"type"`
	Timeframe  string          `json:"timeframe"`
	TimePeriod *costTimePeriod `json:"timePeriod,omitempty"`
	Dataset    costDataset     `json:"dataset"`
}

type costTimePeriod struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type costDataset struct {
	Granularity string                     `json:"granularity"`
	Aggregation map[string]costAggregation `json:"aggregation"`
	Grouping    []costGrouping             `json:"grouping"`
}

type costAggregation struct {
	Name     string `json:"name"`
	Function string `json:"function"`
}

type costGrouping struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type costQueryResult struct {
	Properties struct {
		Columns []struct {
			Name string `json:"name"`
		} `json:"columns"`
		Rows [][]any `json:"rows"`
	} `json:"properties"`
}

func (r *costQueryResult) column(name string) (int, error) {
	for i, column := range r.Properties.Columns {
		if column.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: column %s not found", ErrUnexpectedPayload, name)
}

func newCostQuery(timeframe Timeframe) costQuery {
	query := costQuery{
		Type:      "Usage",
		Timeframe: "MonthToDate",
		Dataset: costDataset{
			Granularity: "Monthly",
			Aggregation: map[string]costAggregation{
				"totalCost": {Name: "PreTaxCost", Function: "Sum"},
			},
			Grouping: []costGrouping{{Type: "Dimension", Name: "ResourceGroup"}},
		},
	}
	if timeframe.IsCustom() {
		query.Timeframe = "Custom"
		query.TimePeriod = &costTimePeriod{From: timeframe.From, To: timeframe.To}
	}
	return query
}

// Costs returns the pre-tax costs of a subscription grouped by resource group.
func (s *Service) Costs(ctx context.Context, subscriptionID string, timeframe Timeframe) ([]Costs, error) {
	body, err := json.Marshal(newCostQuery(timeframe))
	if err != nil {
		return nil, fmt.Errorf("failed to encode cost query: %w", err)
	}

	resp, err := s.client.Execute(ctx, client.Request{
		URL:    s.managementURL("subscriptions/%s/providers/Microsoft.CostManagement/query?api-version=%s", subscriptionID, apiVersionCostManagement),
		Method: "POST",
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	var result costQueryResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	groupCol, err := result.column("ResourceGroup")
	if err != nil {
		return nil, err
	}
	costCol, err := result.column("PreTaxCost")
	if err != nil {
		return nil, err
	}
	currencyCol, err := result.column("Currency")
	if err != nil {
		return nil, err
	}

	costs := make([]Costs, 0, len(result.Properties.Rows))
	for _, row := range result.Properties.Rows {
		group, okGroup := cell[string](row, groupCol)
		amount, okAmount := cell[float64](row, costCol)
		currency, okCurrency := cell[string](row, currencyCol)
		if !okGroup || !okAmount || !okCurrency {
			s.log.Warn().Interface("row", row).Msg("Skipping malformed cost row")
			continue
		}
		costs = append(costs, Costs{ResourceGroup: group, Costs: amount, Currency: currency})
	}
	return costs, nil
}

func cell[T any](row []any, i int) (T, bool) {
	var zero T
	if i >= len(row) {
		return zero, false
	}
	v, ok := row[i].(T)
	return v, ok
}
