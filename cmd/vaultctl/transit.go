package main

import (
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/blueberrycongee/vaultclient/pkg/types"
)

func newTransitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transit",
		Short: "Encryption as a service",
	}

	var encContext string
	encrypt := &cobra.Command{
		Use:   "encrypt KEY PLAINTEXT",
		Short: "Encrypt PLAINTEXT with the named key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.NewEncryptDataRequest([]byte(args[1]))
			req.Context = encContext
			resp, err := a.crypto.Encrypt(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Ciphertext)
			return err
		},
	}
	encrypt.Flags().StringVar(&encContext, "context", "", "base64 derivation context")

	var decContext string
	decrypt := &cobra.Command{
		Use:   "decrypt KEY CIPHERTEXT",
		Short: "Decrypt CIPHERTEXT with the named key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.crypto.Decrypt(cmd.Context(), args[0], &types.DecryptDataRequest{
				Ciphertext: args[1],
				Context:    decContext,
			})
			if err != nil {
				return err
			}
			plain, err := resp.Bytes()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(plain))
			return err
		},
	}
	decrypt.Flags().StringVar(&decContext, "context", "", "base64 derivation context")

	cmd.AddCommand(encrypt, decrypt, newKeyCmd(a))
	return cmd
}

func newKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage transit keys",
	}

	var req types.CreateKeyRequest
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a named key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.crypto.CreateKey(cmd.Context(), args[0], &req)
		},
	}
	create.Flags().StringVar(&req.Type, "type", types.KeyTypeAES256GCM96, "key type")
	create.Flags().BoolVar(&req.Exportable, "exportable", false, "allow the key to be exported")
	create.Flags().BoolVar(&req.Derived, "derived", false, "enable key derivation")
	create.Flags().BoolVar(&req.ConvergentEncryption, "convergent", false, "enable convergent encryption")

	info := &cobra.Command{
		Use:   "info NAME",
		Short: "Show a key's attributes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := a.crypto.KeyInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), details)
		},
	}

	var exportType string
	export := &cobra.Command{
		Use:   "export NAME",
		Short: "Export key material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.crypto.ExportKey(cmd.Context(), exportType, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	export.Flags().StringVar(&exportType, "type", "encryption-key", "encryption-key, signing-key or hmac-key")

	cmd.AddCommand(create, info, export)
	return cmd
}

func newRawCmd(a *app) *cobra.Command {
	var body string
	cmd := &cobra.Command{
		Use:   "raw METHOD PATH",
		Short: "Send an arbitrary request and print the status and body",
		Example: `  vaultctl raw GET v1/sys/mounts
  vaultctl raw POST v1/sys/tools/random --data '{"format":"hex"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload any
			if body != "" {
				var raw json.RawMessage
				if err := json.Unmarshal([]byte(body), &raw); err != nil {
					return fmt.Errorf("--data is not JSON: %w", err)
				}
				payload = raw
			}
			resp, err := a.admin.Execute(cmd.Context(), args[0], args[1], payload)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "%d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode)); err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(resp.Body))
			return err
		},
	}
	cmd.Flags().StringVar(&body, "data", "", "JSON request body")
	return cmd
}
