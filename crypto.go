package vaultclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/blueberrycongee/vaultclient/pkg/types"
)

// CryptoClient adds transit (encryption as a service) operations.
type CryptoClient struct {
	*Client
}

// NewCrypto creates a CryptoClient with the given options.
func NewCrypto(opts ...Option) (*CryptoClient, error) {
	c, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return &CryptoClient{Client: c}, nil
}

// CreateKey creates a named encryption key.
func (c *CryptoClient) CreateKey(ctx context.Context, name string, req *types.CreateKeyRequest) error {
	if req == nil {
		req = &types.CreateKeyRequest{}
	}
	_, err := c.execute(ctx, &call{
		op:     "create_key",
		method: http.MethodPost,
		path:   transitPrefix + "keys/" + trimPath(name),
		body:   req,
		expect: []int{http.StatusNoContent},
	})
	return err
}

// KeyInfo describes a named key. The result is a *types.SymmetricKeyResponse
// for aes256-gcm96 keys and a *types.AsymmetricKeyResponse otherwise.
func (c *CryptoClient) KeyInfo(ctx context.Context, name string) (types.KeyDetails, error) {
	resp, err := c.execute(ctx, &call{
		op:     "key_info",
		method: http.MethodGet,
		path:   transitPrefix + "keys/" + trimPath(name),
		expect: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var kind struct {
		Type string `json:"type"`
	}
	if err := resp.decodeField("data", &kind); err != nil {
		return nil, err
	}

	var details types.KeyDetails
	if kind.Type == types.KeyTypeAES256GCM96 {
		details = &types.SymmetricKeyResponse{}
	} else {
		details = &types.AsymmetricKeyResponse{}
	}
	if err := resp.decodeField("data", details); err != nil {
		return nil, err
	}
	return details, nil
}

// ExportKey returns the key material of an exportable key. exportType is
// "encryption-key", "signing-key" or "hmac-key".
func (c *CryptoClient) ExportKey(ctx context.Context, exportType, name string) (*types.KeyExportResponse, error) {
	switch exportType {
	case "encryption-key", "signing-key", "hmac-key":
	default:
		return nil, fmt.Errorf("unknown export type %q", exportType)
	}
	resp, err := c.execute(ctx, &call{
		op:     "export_key",
		method: http.MethodGet,
		path:   transitPrefix + "export/" + exportType + "/" + trimPath(name),
		expect: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var out types.KeyExportResponse
	if err := resp.decodeField("data", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Encrypt encrypts base64 plaintext with the named key.
func (c *CryptoClient) Encrypt(ctx context.Context, key string, req *types.EncryptDataRequest) (*types.EncryptDataResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("encrypt request is nil")
	}
	resp, err := c.execute(ctx, &call{
		op:     "encrypt",
		method: http.MethodPost,
		path:   transitPrefix + "encrypt/" + trimPath(key),
		body:   req,
		expect: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var out types.EncryptDataResponse
	if err := resp.decodeField("data", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Decrypt decrypts ciphertext with the named key. The plaintext in the
// response is base64 encoded.
func (c *CryptoClient) Decrypt(ctx context.Context, key string, req *types.DecryptDataRequest) (*types.DecryptDataResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("decrypt request is nil")
	}
	resp, err := c.execute(ctx, &call{
		op:     "decrypt",
		method: http.MethodPost,
		path:   transitPrefix + "decrypt/" + trimPath(key),
		body:   req,
		expect: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	var out types.DecryptDataResponse
	if err := resp.decodeField("data", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
