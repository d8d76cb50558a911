// Package types contains the request and response shapes exchanged with the
// secrets service. Field names follow the service's snake_case JSON.
package types

// ListResponse is the result of listing a secret path.
type ListResponse struct {
	Keys []string `json:"keys"`
}

// SecretResponse is the result of reading a secret.
type SecretResponse struct {
	Data map[string]string `json:"data"`
}

// Value returns the value stored under key and whether it was present.
func (r *SecretResponse) Value(key string) (string, bool) {
	if r == nil || r.Data == nil {
		return "", false
	}
	v, ok := r.Data[key]
	return v, ok
}

// ErrorResponse is the body the service returns with non-2xx statuses.
type ErrorResponse struct {
	Errors []string `json:"errors"`
}
