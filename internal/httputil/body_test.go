package httputil

import (
	"errors"
	"strings"
	"testing"
)

func TestReadLimitedBody_AllowsWithinLimit(t *testing.T) {
	body, err := ReadLimitedBody(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("unexpected body: %s", string(body))
	}
}

func TestReadLimitedBody_RejectsOversize(t *testing.T) {
	body, err := ReadLimitedBody(strings.NewReader("helloworld"), 5)
	if !errors.Is(err, ErrResponseBodyTooLarge) {
		t.Fatalf("expected ErrResponseBodyTooLarge, got %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("unexpected body: %s", string(body))
	}
}

func TestReadLimitedBody_Unlimited(t *testing.T) {
	body, err := ReadLimitedBody(strings.NewReader("helloworld"), 0)
	if err != nil || string(body) != "helloworld" {
		t.Fatalf("unexpected result %q, %v", body, err)
	}
}

func TestDecodeField(t *testing.T) {
	var data struct {
		Keys []string `json:"keys"`
	}
	if err := DecodeField([]byte(`{"data":{"keys":["a","b/"]}}`), "data", &data); err != nil {
		t.Fatalf("DecodeField() error = %v", err)
	}
	if len(data.Keys) != 2 || data.Keys[1] != "b/" {
		t.Fatalf("unexpected keys: %v", data.Keys)
	}

	if err := DecodeField([]byte(`{"auth":null}`), "auth", &data); err == nil {
		t.Fatal("expected error for null field")
	}
	if err := DecodeField([]byte(`{"other":{}}`), "data", &data); err == nil {
		t.Fatal("expected error for missing field")
	}
	if err := DecodeField(nil, "data", &data); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"list", `{"errors":["permission denied"]}`, []string{"permission denied"}},
		{"empty body", ``, []string{}},
		{"whitespace body", "  \n", []string{}},
		{"not json", `<html>bad gateway</html>`, []string{}},
		{"no errors key", `{"warnings":["x"]}`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ErrorMessages([]byte(tt.body))
			if got == nil {
				t.Fatal("ErrorMessages returned nil")
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("ErrorMessages() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeJSON(t *testing.T) {
	b, err := EncodeJSON(nil)
	if err != nil || b != nil {
		t.Fatalf("EncodeJSON(nil) = %q, %v", b, err)
	}

	b, err = EncodeJSON(map[string]string{"value": "x"})
	if err != nil {
		t.Fatalf("EncodeJSON() error = %v", err)
	}
	if string(b) != `{"value":"x"}` {
		t.Fatalf("unexpected encoding %s", b)
	}
}
