package models

// ProviderConfig carries the credentials and endpoints for one venue.
// Keys are opaque to the core and never persisted here.
type ProviderConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string // REST data base, provider default when empty
	WSURL     string // streaming endpoint, provider default when empty
	Sandbox   bool
}

// ProviderInfo describes a registered market-data provider
type ProviderInfo struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	SupportedAssets []string `json:"supportedAssets"`
	RequiresAuth    bool     `json:"requiresAuth"`
}
