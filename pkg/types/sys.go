package types

// InitRequest initializes a new server.
type InitRequest struct {
	SecretShares    int `json:"secret_shares"`
	SecretThreshold int `json:"secret_threshold"`
}

// InitResponse carries the unseal keys and root token of a new server.
type InitResponse struct {
	Keys      []string `json:"keys"`
	RootToken string   `json:"root_token"`
}

// HealthResponse reports the server's health.
type HealthResponse struct {
	Initialized bool `json:"initialized"`
	Sealed      bool `json:"sealed"`
	Standby     bool `json:"standby"`
}

// UnsealRequest submits one unseal key share.
type UnsealRequest struct {
	Key   string `json:"key"`
	Reset bool   `json:"reset"`
}

// SealStatusResponse reports unseal progress.
type SealStatusResponse struct {
	Sealed   bool `json:"sealed"`
	T        int  `json:"t"`
	N        int  `json:"n"`
	Progress int  `json:"progress"`
}

// Policy holds a policy document.
type Policy struct {
	Rules string `json:"rules"`
}

// PoliciesResponse lists policy names.
type PoliciesResponse struct {
	Policies []string `json:"policies"`
}

// EnableAuditBackendRequest enables an audit backend.
type EnableAuditBackendRequest struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
}
