package service

import "regexp"

var (
	subscriptionPattern  = regexp.MustCompile(`^/subscriptions/([^/]+)`)
	resourceGroupPattern = regexp.MustCompile(`(?i)/resourceGroups/([^/]+)`)
)

// SubscriptionIDOf extracts the subscription id from an ARM resource id.
func SubscriptionIDOf(id string) (string, bool) {
	m := subscriptionPattern.FindStringSubmatch(id)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ResourceGroupOf extracts the resource group name from an ARM resource id.
func ResourceGroupOf(id string) (string, bool) {
	m := resourceGroupPattern.FindStringSubmatch(id)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Subscription is an Azure subscription visible to the signed-in user.
type Subscription struct {
	ID             string `json:"id" yaml:"id"`
	SubscriptionID string `json:"subscriptionId" yaml:"subscriptionId"`
	Name           string `json:"displayName" yaml:"displayName"`
	TenantID       string `json:"tenantId,omitempty" yaml:"tenantId,omitempty"`
	State          string `json:"state,omitempty" yaml:"state,omitempty"`
}

type ResourceGroup struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Location string `json:"location" yaml:"location"`
}

type Resource struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Kind     string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Location string `json:"location" yaml:"location"`
}

// ResourceGroup returns the resource group the resource belongs to.
func (r *Resource) ResourceGroup() string {
	group, _ := ResourceGroupOf(r.ID)
	return group
}

// IPAddress is an allocated public IP address.
type IPAddress struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	IPAddress string `json:"ipAddress" yaml:"ipAddress"`
}

// Record types reported by DNS queries.
const (
	RecordTypeA     = "A"
	RecordTypeCNAME = "CNAME"
)

// DNSRecord is an A or CNAME record set of a DNS zone.
type DNSRecord struct {
	ID     string   `json:"id" yaml:"id"`
	Name   string   `json:"name" yaml:"name"`
	FQDN   string   `json:"fqdn" yaml:"fqdn"`
	Type   string   `json:"type" yaml:"type"`
	Values []string `json:"values" yaml:"values"`
}

// Costs is the pre-tax cost of one resource group.
type Costs struct {
	ResourceGroup string  `json:"resourceGroup" yaml:"resourceGroup"`
	Costs         float64 `json:"costs" yaml:"costs"`
	Currency      string  `json:"currency" yaml:"currency"`
}

// Timeframe selects the period of a cost query. The zero value is the
// current month to date.
type Timeframe struct {
	From string
	To   string
}

// IsCustom reports whether an explicit period was set.
func (t Timeframe) IsCustom() bool {
	return t.From != "" || t.To != ""
}
