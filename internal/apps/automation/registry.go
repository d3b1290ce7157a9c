package automation

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

const (
	AuthNone   = "none"
	AuthAPIKey = "api_key"
	AuthOAuth  = "oauth"
)

// ProviderConfig describes an integration provider and the operations it supports.
type ProviderConfig struct {
	Name       string   `json:"name"`
	Label      string   `json:"label"`
	BaseURL    string   `json:"base_url"`
	AuthType   string   `json:"auth_type"`
	Operations []string `json:"operations"`
	Enabled    bool     `json:"enabled"`
}

// Supports reports whether op is one of the provider's operations.
func (p *ProviderConfig) Supports(op string) bool {
	for _, o := range p.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// NeedsAccount reports whether actions on this provider require an integration account.
func (p *ProviderConfig) NeedsAccount() bool {
	return p.AuthType != AuthNone
}

type providerOverride struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	BaseURL string `json:"base_url"`
	Enabled *bool  `json:"enabled"`
}

type ProvidersFile struct {
	Providers []providerOverride `json:"providers"`
}

type Registry struct {
	mu        sync.RWMutex
	providers map[string]*ProviderConfig
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*ProviderConfig),
	}
}

// DefaultRegistry holds the built-in providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&ProviderConfig{
		Name: ProviderWebhook, Label: "Webhook", AuthType: AuthNone,
		Operations: []string{OpPostJSON}, Enabled: true,
	})
	r.Register(&ProviderConfig{
		Name: ProviderSlack, Label: "Slack", BaseURL: "https://slack.com/api", AuthType: AuthOAuth,
		Operations: []string{OpPostMessage}, Enabled: true,
	})
	r.Register(&ProviderConfig{
		Name: ProviderTrello, Label: "Trello", BaseURL: "https://api.trello.com", AuthType: AuthAPIKey,
		Operations: []string{OpCreateCard}, Enabled: true,
	})
	r.Register(&ProviderConfig{
		Name: ProviderGoogleSheets, Label: "Google Sheets", BaseURL: "https://sheets.googleapis.com", AuthType: AuthOAuth,
		Operations: []string{OpAppendRow}, Enabled: true,
	})
	return r
}

// LoadFromFile returns the built-in providers with overrides from the JSON
// file at path applied. An empty path yields the defaults.
func LoadFromFile(path string) (*Registry, error) {
	registry := DefaultRegistry()
	if path == "" {
		return registry, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers config: %w", err)
	}

	var file ProvidersFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse providers config: %w", err)
	}

	for _, o := range file.Providers {
		if err := registry.apply(o); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *Registry) apply(o providerOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, ok := r.providers[o.Name]
	if !ok {
		return fmt.Errorf("providers config: unknown provider %q", o.Name)
	}
	if o.Label != "" {
		cfg.Label = o.Label
	}
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}
	if o.Enabled != nil {
		cfg.Enabled = *o.Enabled
	}
	return nil
}

func (r *Registry) Register(cfg *ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[cfg.Name] = cfg
}

// Get returns a copy of the provider config, or nil if unknown.
func (r *Registry) Get(name string) *ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.providers[name]
	if !ok {
		return nil
	}
	out := *cfg
	return &out
}

func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

func (r *Registry) All() []*ProviderConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*ProviderConfig, 0, len(r.providers))
	for _, cfg := range r.providers {
		out := *cfg
		result = append(result, &out)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
