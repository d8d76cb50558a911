// Package observability provides logging, request id and tracing utilities.
// Vault tokens never reach log output: the redacting handler masks them.
package observability

import (
	"regexp"
	"strings"
)

// Redactor handles sensitive data masking in logs.
type Redactor struct {
	patterns []*redactPattern
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
	name        string
}

// NewRedactor creates a new redactor with default patterns.
func NewRedactor() *Redactor {
	r := &Redactor{}
	r.addDefaultPatterns()
	return r
}

func (r *Redactor) addDefaultPatterns() {
	// Service tokens: hvs./hvb./hvr. and the legacy s./b./r. prefixes.
	r.AddPattern(`\bhv[sbr]\.[A-Za-z0-9_\-]{20,}`, "[REDACTED_VAULT_TOKEN]", "vault_token")
	r.AddPattern(`\b[sbr]\.[A-Za-z0-9]{24}\b`, "[REDACTED_VAULT_TOKEN]", "vault_legacy_token")

	r.AddPattern(`(?i)X-Vault-Token:\s*[^\s]+`, "X-Vault-Token: [REDACTED]", "vault_token_header")
	r.AddPattern(`Bearer\s+[a-zA-Z0-9\-_\.]+`, "Bearer [REDACTED]", "bearer_token")
	r.AddPattern(`Authorization:\s*[^\s]+`, "Authorization: [REDACTED]", "auth_header")

	// Unseal keys and root tokens as returned by init.
	r.AddPattern(`"(root_token|client_token|key|keys_base64)"\s*:\s*"[^"]*"`, `"$1":"[REDACTED]"`, "json_secret")
}

// AddPattern adds a custom redaction pattern. Invalid patterns are skipped.
func (r *Redactor) AddPattern(pattern, replacement, name string) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	r.patterns = append(r.patterns, &redactPattern{
		regex:       regex,
		replacement: replacement,
		name:        name,
	})
}

// Redact applies all redaction patterns to the input string.
func (r *Redactor) Redact(input string) string {
	result := input
	for _, p := range r.patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

var sensitiveKeys = []string{"token", "secret", "password", "unseal", "credential", "plaintext"}

// SensitiveKey reports whether a field name suggests its value must not be
// logged.
func SensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sk := range sensitiveKeys {
		if strings.Contains(lowerKey, sk) {
			return true
		}
	}
	return false
}

// RedactMap redacts sensitive values in a map.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for k, v := range m {
		result[k] = r.redactValue(k, v)
	}
	return result
}

func (r *Redactor) redactValue(key string, value any) any {
	if SensitiveKey(key) {
		return "[REDACTED]"
	}

	switch v := value.(type) {
	case string:
		return r.Redact(v)
	case map[string]any:
		return r.RedactMap(v)
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = r.redactValue("", item)
		}
		return result
	default:
		return value
	}
}

// RedactHeaders redacts sensitive HTTP headers.
func (r *Redactor) RedactHeaders(headers map[string][]string) map[string][]string {
	sensitiveHeaders := map[string]bool{
		"x-vault-token":      true,
		"x-vault-wrap-token": true,
		"authorization":      true,
		"cookie":             true,
		"set-cookie":         true,
	}

	result := make(map[string][]string, len(headers))
	for k, v := range headers {
		if sensitiveHeaders[strings.ToLower(k)] {
			result[k] = []string{"[REDACTED]"}
		} else {
			result[k] = v
		}
	}
	return result
}
