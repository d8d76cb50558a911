package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blueberrycongee/vaultclient/pkg/types"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Create, inspect and revoke tokens",
	}

	lookupSelf := &cobra.Command{
		Use:   "lookup-self",
		Short: "Show the token in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.admin.LookupSelf(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}

	lookup := &cobra.Command{
		Use:   "lookup TOKEN",
		Short: "Show another token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.admin.LookupToken(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}

	var (
		req    types.TokenAuthRequest
		orphan bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a child or orphan token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			create := a.admin.CreateToken
			if orphan {
				create = a.admin.CreateOrphanToken
			}
			auth, err := create(cmd.Context(), &req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), auth)
		},
	}
	create.Flags().StringSliceVar(&req.Policies, "policy", nil, "policy to attach (repeatable)")
	create.Flags().StringVar(&req.TTL, "ttl", "", "token TTL, e.g. 1h")
	create.Flags().StringVar(&req.DisplayName, "display-name", "", "display name")
	create.Flags().IntVar(&req.NumUses, "num-uses", 0, "maximum uses, 0 for unlimited")
	create.Flags().BoolVar(&req.NoDefaultPolicy, "no-default-policy", false, "do not attach the default policy")
	create.Flags().StringToStringVar(&req.Meta, "meta", nil, "metadata key=value pairs")
	create.Flags().BoolVar(&orphan, "orphan", false, "create a token without a parent")

	var revokeOrphan bool
	revoke := &cobra.Command{
		Use:   "revoke TOKEN",
		Short: "Revoke a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			revoke := a.admin.RevokeToken
			if revokeOrphan {
				revoke = a.admin.RevokeOrphanToken
			}
			if err := revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "revoked")
			return err
		},
	}
	revoke.Flags().BoolVar(&revokeOrphan, "orphan", false, "keep the token's children as orphans")

	cmd.AddCommand(lookupSelf, lookup, create, revoke)
	return cmd
}
