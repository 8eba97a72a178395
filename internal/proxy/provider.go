// Package proxy provides the outbound proxy rotation pool and its list
// provider client. Proxies are consumed strictly front to back and the pool
// is replenished only by an explicit reload.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultProviderTimeout = 10 * time.Second

// Provider fetches candidate proxy addresses from an external proxy-list
// service.
type Provider struct {
	url        string
	httpClient *http.Client
}

// NewProvider creates a provider client for the given list endpoint.
func NewProvider(url string) *Provider {
	return &Provider{
		url: url,
		httpClient: &http.Client{
			Timeout: defaultProviderTimeout,
		},
	}
}

// proxyEntry mirrors one element of the provider's JSON response.
type proxyEntry struct {
	Proxy string `json:"proxy"`
}

// ListProxies fetches the current proxy list. Entries with an empty address
// are skipped.
func (p *Provider) ListProxies(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy list request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch proxy list from %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy provider returned non-OK status: %s", resp.Status)
	}

	var entries []proxyEntry

	err = json.NewDecoder(resp.Body).Decode(&entries)
	if err != nil {
		return nil, fmt.Errorf("failed to decode proxy list: %w", err)
	}

	addresses := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.Proxy != "" {
			addresses = append(addresses, entry.Proxy)
		}
	}

	return addresses, nil
}
