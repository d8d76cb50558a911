// Package httputil provides helpers for reading service response payloads
// safely.
package httputil

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

const (
	// DefaultMaxResponseBodyBytes caps response bodies to 4MB.
	DefaultMaxResponseBodyBytes int64 = 4 * 1024 * 1024
)

var ErrResponseBodyTooLarge = errors.New("response body too large")

// ReadLimitedBody reads up to maxBytes from reader and returns ErrResponseBodyTooLarge when exceeded.
func ReadLimitedBody(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(reader)
	}

	limited := io.LimitReader(reader, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return body, err
	}
	if int64(len(body)) > maxBytes {
		body = body[:int(maxBytes)]
		return body, ErrResponseBodyTooLarge
	}
	return body, nil
}

// DecodeJSON unmarshals body into v. An empty body is an error.
func DecodeJSON(body []byte, v any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("empty response body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// DecodeField unmarshals the object stored under key in a JSON body, such as
// the "data" or "auth" wrapper of a service response.
func DecodeField(body []byte, key string, v any) error {
	var envelope map[string]json.RawMessage
	if err := DecodeJSON(body, &envelope); err != nil {
		return err
	}
	raw, ok := envelope[key]
	if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("response has no %q field", key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %q: %w", key, err)
	}
	return nil
}

// ErrorMessages extracts the "errors" list from an error body. Bodies that are
// empty or not in the expected shape yield an empty list.
func ErrorMessages(body []byte) []string {
	if len(bytes.TrimSpace(body)) == 0 {
		return []string{}
	}
	var payload struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Errors == nil {
		return []string{}
	}
	return payload.Errors
}

// EncodeJSON marshals v for use as a request body. A nil v yields nil.
func EncodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return b, nil
}
