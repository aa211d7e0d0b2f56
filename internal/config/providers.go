package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LocationCategory is one CBIS category imported as locations.
// Arena categories are fetched with ProductType "Arena"; the rest as products.
type LocationCategory struct {
	ID    int    `yaml:"id"`
	Name  string `yaml:"name"`
	Arena bool   `yaml:"arena"`
}

// Credential is one configured API key/endpoint pair for a provider.
// Which fields are required depends on the provider.
type Credential struct {
	Name               string             `yaml:"name"`
	URL                string             `yaml:"url"`
	APIKey             string             `yaml:"api_key"`
	Username           string             `yaml:"username"`
	Password           string             `yaml:"password"`
	GeoNodeID          int                `yaml:"geonode_id"`
	EventCategoryID    int                `yaml:"event_category_id"`
	LocationCategories []LocationCategory `yaml:"location_categories"`
	ExcludeCategories  []string           `yaml:"exclude_categories"`
	Groups             []int              `yaml:"groups"`
	DefaultCity        string             `yaml:"default_city"`
	FilterTags         []string           `yaml:"filter_tags"`
	Weeks              int                `yaml:"weeks"`
	TicketURL          string             `yaml:"ticket_url"`
	PageSize           int                `yaml:"page_size"`
}

// Label identifies a credential in logs without exposing secrets.
func (c Credential) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.URL
}

// ProviderConfig holds one provider's run settings and ordered key list.
type ProviderConfig struct {
	Cron       bool         `yaml:"cron"`
	PostStatus string       `yaml:"post_status"`
	Keys       []Credential `yaml:"keys"`
}

// Providers maps provider name to its configuration.
type Providers map[string]ProviderConfig

type providersFile struct {
	Providers Providers `yaml:"providers"`
}

// LoadProviders reads the providers YAML file.
func LoadProviders(path string) (Providers, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	return ParseProviders(b)
}

// ParseProviders decodes providers YAML and applies defaults.
func ParseProviders(b []byte) (Providers, error) {
	var f providersFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode providers file: %w", err)
	}
	out := Providers{}
	for name, pc := range f.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		if !IsKnownProvider(name) {
			return nil, fmt.Errorf("unknown provider %q in providers file", name)
		}
		if pc.PostStatus == "" {
			pc.PostStatus = "publish"
		}
		if pc.PostStatus != "publish" && pc.PostStatus != "draft" {
			return nil, fmt.Errorf("provider %s: post_status must be publish or draft, got %q", name, pc.PostStatus)
		}
		out[name] = pc
	}
	return out, nil
}

// Keys returns the ordered credential list for a provider (nil if unconfigured).
func (p Providers) Keys(provider string) []Credential {
	return p[provider].Keys
}

// IsKnownProvider reports whether name is a supported provider.
func IsKnownProvider(name string) bool {
	for _, n := range ProviderNames {
		if n == name {
			return true
		}
	}
	return false
}
