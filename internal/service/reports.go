package service

import (
	"context"
	"strings"
)

// ListResult is one subscription with its resource groups and, optionally,
// its resources.
type ListResult struct {
	Subscription   Subscription    `json:"subscription" yaml:"subscription"`
	ResourceGroups []ResourceGroup `json:"resourceGroups" yaml:"resourceGroups"`
	Resources      []Resource      `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// List walks all subscriptions and their resource groups.
func (s *Service) List(ctx context.Context, withResources bool) ([]ListResult, error) {
	subscriptions, err := s.Subscriptions(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]ListResult, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		groups, err := s.ResourceGroups(ctx, subscription.SubscriptionID)
		if err != nil {
			return nil, err
		}
		result := ListResult{Subscription: subscription, ResourceGroups: groups}

		if withResources {
			result.Resources, err = s.Resources(ctx, subscription.SubscriptionID)
			if err != nil {
				return nil, err
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// DNSResult is one DNS zone with its record sets.
type DNSResult struct {
	Zone    Resource    `json:"zone" yaml:"zone"`
	Records []DNSRecord `json:"records" yaml:"records"`
}

// DNS lists the A and CNAME records of every DNS zone in every subscription.
func (s *Service) DNS(ctx context.Context) ([]DNSResult, error) {
	subscriptions, err := s.Subscriptions(ctx)
	if err != nil {
		return nil, err
	}

	var results []DNSResult
	for _, subscription := range subscriptions {
		zones, err := s.ResourcesByType(ctx, subscription.SubscriptionID, TypeDNSZone)
		if err != nil {
			return nil, err
		}

		for _, zone := range zones {
			subscriptionID, okSub := SubscriptionIDOf(zone.ID)
			group, okGroup := ResourceGroupOf(zone.ID)
			if !okSub || !okGroup {
				s.log.Warn().Str("id", zone.ID).Msg("Skipping DNS zone with unexpected id")
				continue
			}

			records, err := s.DNSRecords(ctx, subscriptionID, group, zone.Name)
			if err != nil {
				return nil, err
			}
			results = append(results, DNSResult{Zone: zone, Records: records})
		}
	}
	return results, nil
}

// IPGroup is a resource group with the public IP addresses allocated in it.
type IPGroup struct {
	ResourceGroup ResourceGroup `json:"resourceGroup" yaml:"resourceGroup"`
	IPAddresses   []IPAddress   `json:"ipAddresses" yaml:"ipAddresses"`
}

// IPResult is one subscription with its resource groups and their public
// IP addresses.
type IPResult struct {
	Subscription   Subscription `json:"subscription" yaml:"subscription"`
	ResourceGroups []IPGroup    `json:"resourceGroups" yaml:"resourceGroups"`
}

// IPs lists the public IP addresses of every subscription grouped by
// resource group.
func (s *Service) IPs(ctx context.Context) ([]IPResult, error) {
	subscriptions, err := s.Subscriptions(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]IPResult, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		groups, err := s.ResourceGroups(ctx, subscription.SubscriptionID)
		if err != nil {
			return nil, err
		}
		addresses, err := s.IPAddresses(ctx, subscription.SubscriptionID)
		if err != nil {
			return nil, err
		}

		result := IPResult{Subscription: subscription, ResourceGroups: make([]IPGroup, 0, len(groups))}
		for _, group := range groups {
			ipGroup := IPGroup{ResourceGroup: group, IPAddresses: []IPAddress{}}
			for _, address := range addresses {
				if name, ok := ResourceGroupOf(address.ID); ok && strings.EqualFold(name, group.Name) {
					ipGroup.IPAddresses = append(ipGroup.IPAddresses, address)
				}
			}
			result.ResourceGroups = append(result.ResourceGroups, ipGroup)
		}
		results = append(results, result)
	}
	return results, nil
}

// CostResult is the cost breakdown of one subscription. Currency is the
// currency of the first row; Total sums all rows.
type CostResult struct {
	Subscription Subscription `json:"subscription" yaml:"subscription"`
	Costs        []Costs      `json:"costs" yaml:"costs"`
	Total        float64      `json:"total" yaml:"total"`
	Currency     string       `json:"currency,omitempty" yaml:"currency,omitempty"`
}

// CostReport queries the costs of every subscription.
func (s *Service) CostReport(ctx context.Context, timeframe Timeframe) ([]CostResult, error) {
	subscriptions, err := s.Subscriptions(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]CostResult, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		costs, err := s.Costs(ctx, subscription.SubscriptionID, timeframe)
		if err != nil {
			return nil, err
		}

		result := CostResult{Subscription: subscription, Costs: costs}
		for _, item := range costs {
			result.Total += item.Costs
			if result.Currency == "" {
				result.Currency = item.Currency
			}
		}
		results = append(results, result)
	}
	return results, nil
}
