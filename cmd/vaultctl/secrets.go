package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blueberrycongee/vaultclient/internal/secret"
	"github.com/blueberrycongee/vaultclient/internal/secret/env"
	secretvault "github.com/blueberrycongee/vaultclient/internal/secret/vault"
)

func newReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read PATH [KEY]",
		Short: "Read a secret, or a single key of it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := a.admin.Read(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(args) == 2 {
				value, ok := secret.Value(args[1])
				if !ok {
					return fmt.Errorf("key %q not found at %s", args[1], args[0])
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), value)
				return err
			}
			return printJSON(cmd.OutOrStdout(), secret.Data)
		},
	}
}

func newWriteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "write PATH KEY=VALUE...",
		Short: "Write key/value pairs to a secret path",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parsePairs(args[1:])
			if err != nil {
				return err
			}
			if err := a.admin.Write(cmd.Context(), args[0], data); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d keys to %s\n", len(data), args[0])
			return err
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list PATH",
		Short: "List the keys under a secret path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.admin.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, key := range resp.Keys {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), key); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete PATH",
		Short: "Delete a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.admin.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}
}

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve REF...",
		Short: "Resolve vault://path#key and env://NAME references",
		Long: `resolve prints the value behind each reference, one per line.
Arguments without a scheme are printed unchanged.`,
		Example: `  vaultctl resolve vault://app/db#password env://HOME`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refs := secret.NewManager()
			refs.Register("vault", secret.NewCachedProvider(secretvault.New(a.admin.Client), time.Minute))
			refs.Register("env", env.New())
			defer func() { _ = refs.Close() }()

			values, err := refs.GetAll(cmd.Context(), args)
			if err != nil {
				return err
			}
			for _, v := range values {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func parsePairs(args []string) (map[string]string, error) {
	data := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", arg)
		}
		data[key] = value
	}
	return data, nil
}
