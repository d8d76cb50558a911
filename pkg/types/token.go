package types

// TokenAuthRequest describes a token to create.
type TokenAuthRequest struct {
	ID              string            `json:"id,omitempty"`
	Policies        []string          `json:"policies,omitempty"`
	Meta            map[string]string `json:"meta,omitempty"`
	NoParent        bool              `json:"no_parent"`
	NoDefaultPolicy bool              `json:"no_default_policy"`
	TTL             string            `json:"ttl,omitempty"`
	DisplayName     string            `json:"display_name,omitempty"`
	NumUses         int               `json:"num_uses"`
}

// AuthResponse is the "auth" block returned when a token is created.
type AuthResponse struct {
	ClientToken   string            `json:"client_token"`
	Policies      []string          `json:"policies"`
	Metadata      map[string]string `json:"metadata"`
	LeaseDuration int               `json:"lease_duration"`
	Renewable     bool              `json:"renewable"`
}

// ClientTokenResponse describes a token as returned by the lookup endpoints.
type ClientTokenResponse struct {
	ID          string            `json:"id"`
	Policies    []string          `json:"policies"`
	Path        string            `json:"path"`
	Meta        map[string]string `json:"meta"`
	DisplayName string            `json:"display_name"`
	NumUses     int               `json:"num_uses"`
}

// RevokeTokenRequest is sent when revoking a token.
type RevokeTokenRequest struct {
	Token string `json:"token"`
}
