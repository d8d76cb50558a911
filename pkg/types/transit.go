package types

import (
	"encoding/base64"
	"fmt"
)

// Transit key types.
const (
	KeyTypeAES256GCM96 = "aes256-gcm96"
	KeyTypeECDSAP256   = "ecdsa-p256"
	KeyTypeED25519     = "ed25519"
	KeyTypeRSA2048     = "rsa-2048"
	KeyTypeRSA4096     = "rsa-4096"
)

// CreateKeyRequest creates a named transit key.
type CreateKeyRequest struct {
	ConvergentEncryption bool   `json:"convergent_encryption"`
	Derived              bool   `json:"derived"`
	Exportable           bool   `json:"exportable"`
	Type                 string `json:"type,omitempty"`
}

// KeyResponse holds the attributes shared by every transit key type.
type KeyResponse struct {
	DeletionAllowed      bool   `json:"deletion_allowed"`
	Derived              bool   `json:"derived"`
	Exportable           bool   `json:"exportable"`
	LatestVersion        int    `json:"latest_version"`
	MinDecryptionVersion int    `json:"min_decryption_version"`
	MinEncryptionVersion int    `json:"min_encryption_version"`
	Name                 string `json:"name"`
	SupportsDecryption   bool   `json:"supports_decryption"`
	SupportsDerivation   bool   `json:"supports_derivation"`
	SupportsEncryption   bool   `json:"supports_encryption"`
	SupportsSigning      bool   `json:"supports_signing"`
	Type                 string `json:"type"`
}

// KeyDetails is implemented by the per-type key responses.
type KeyDetails interface {
	Key() *KeyResponse
}

// SymmetricKeyResponse describes a symmetric key. Keys maps a version to the
// time it was created, as a unix timestamp.
type SymmetricKeyResponse struct {
	KeyResponse
	Keys map[string]int64 `json:"keys"`
}

// Key implements KeyDetails.
func (r *SymmetricKeyResponse) Key() *KeyResponse { return &r.KeyResponse }

// AsymmetricKey is one version of an asymmetric key.
type AsymmetricKey struct {
	CreationTime string `json:"creation_time"`
	Name         string `json:"name"`
	PublicKey    string `json:"public_key"`
}

// AsymmetricKeyResponse describes an asymmetric key, by version.
type AsymmetricKeyResponse struct {
	KeyResponse
	Keys map[string]AsymmetricKey `json:"keys"`
}

// Key implements KeyDetails.
func (r *AsymmetricKeyResponse) Key() *KeyResponse { return &r.KeyResponse }

// KeyExportResponse carries exported key material by version.
type KeyExportResponse struct {
	Keys map[string]string `json:"keys"`
	Name string            `json:"name"`
	Type string            `json:"type"`
}

// EncryptDataRequest encrypts base64 encoded plaintext.
type EncryptDataRequest struct {
	Plaintext  string `json:"plaintext"`
	Context    string `json:"context,omitempty"`
	KeyVersion int    `json:"key_version,omitempty"`
}

// NewEncryptDataRequest base64 encodes plaintext into a request.
func NewEncryptDataRequest(plaintext []byte) *EncryptDataRequest {
	return &EncryptDataRequest{Plaintext: base64.StdEncoding.EncodeToString(plaintext)}
}

// EncryptDataResponse carries the resulting ciphertext.
type EncryptDataResponse struct {
	Ciphertext string `json:"ciphertext"`
}

// DecryptDataRequest decrypts ciphertext produced by the transit backend.
type DecryptDataRequest struct {
	Ciphertext string `json:"ciphertext"`
	Context    string `json:"context,omitempty"`
}

// DecryptDataResponse carries base64 encoded plaintext.
type DecryptDataResponse struct {
	Plaintext string `json:"plaintext"`
}

// Bytes decodes the base64 plaintext.
func (r *DecryptDataResponse) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(r.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("decode plaintext: %w", err)
	}
	return b, nil
}
