// Package vaultclient is a client library for a Vault-style secrets service.
//
// Every request resolves the service address and a token at call time. The
// token comes from a credentials.Source, by default a chain that consults the
// VAULT_TOKEN environment variable and then the vault.token process property,
// reusing whichever source succeeded last.
//
// Basic usage:
//
//	client, err := vaultclient.New(
//	    vaultclient.WithAddress("https://vault.internal:8200"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	secret, err := client.Read(ctx, "app/db")
package vaultclient

import (
	"github.com/blueberrycongee/vaultclient/pkg/credentials"
	"github.com/blueberrycongee/vaultclient/pkg/errors"
	"github.com/blueberrycongee/vaultclient/pkg/types"
)

// Version is the current version of vaultclient.
const Version = "0.4.0"

// Re-export common types for convenience.
type (
	// Credentials is an opaque bearer token.
	Credentials = credentials.Credentials

	// CredentialSource yields credentials on demand.
	CredentialSource = credentials.Source

	// ListResponse is the result of List.
	ListResponse = types.ListResponse

	// SecretResponse is the result of Read.
	SecretResponse = types.SecretResponse

	// ServerError is returned for unexpected response statuses.
	ServerError = errors.ServerError

	// ClientError is returned for failures before a usable response exists.
	ClientError = errors.ClientError
)

// ErrCredentials matches requests aborted because no token was available.
var ErrCredentials = errors.ErrCredentials
