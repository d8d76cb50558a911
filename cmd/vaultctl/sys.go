package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blueberrycongee/vaultclient/internal/healthcheck"
	"github.com/blueberrycongee/vaultclient/pkg/types"
)

func newSysCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sys",
		Short: "Server administration",
	}

	health := &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.admin.Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	sealStatus := &cobra.Command{
		Use:   "seal-status",
		Short: "Show unseal progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.admin.SealStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	var reset bool
	unseal := &cobra.Command{
		Use:   "unseal KEY",
		Short: "Submit one unseal key share",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.admin.Unseal(cmd.Context(), args[0], reset)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	unseal.Flags().BoolVar(&reset, "reset", false, "discard previously submitted shares")

	var shares, threshold int
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.admin.Init(cmd.Context(), shares, threshold)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	initCmd.Flags().IntVar(&shares, "shares", 5, "number of key shares")
	initCmd.Flags().IntVar(&threshold, "threshold", 3, "shares required to unseal")

	cmd.AddCommand(health, sealStatus, unseal, initCmd, newWatchCmd(a), newPolicyCmd(a), newAuditCmd(a))
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		interval time.Duration
		count    int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll server health and print state changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			prober := healthcheck.NewProber(healthcheck.Config{Interval: interval}, a.admin, a.logger)
			out := cmd.OutOrStdout()
			prober.OnChange(func(_, next healthcheck.Status) {
				line := fmt.Sprintf("%s %s", next.CheckedAt.Format(time.RFC3339), next.State)
				if next.Err != nil {
					line += ": " + next.Err.Error()
				}
				_, _ = fmt.Fprintln(out, line)
			})

			if count <= 0 {
				prober.Start(ctx)
				<-ctx.Done()
				return nil
			}
			return probeN(ctx, prober, count, interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "time between probes")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many probes, 0 to run until interrupted")
	return cmd
}

func probeN(ctx context.Context, prober *healthcheck.Prober, n int, interval time.Duration) error {
	for i := 0; i < n; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
		prober.RunOnce(ctx)
	}
	return nil
}

func newPolicyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage policies",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List policy names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.admin.Policies(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	read := &cobra.Command{
		Use:   "read NAME",
		Short: "Print a policy's rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := a.admin.Policy(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), policy.Rules)
			return err
		},
	}

	write := &cobra.Command{
		Use:   "write NAME FILE",
		Short: "Create or replace a policy from a rules file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read policy file: %w", err)
			}
			return a.admin.PutPolicy(cmd.Context(), args[0], &types.Policy{Rules: string(rules)})
		},
	}

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.admin.DeletePolicy(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(list, read, write, del)
	return cmd
}

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Enable and disable audit backends",
	}

	var req types.EnableAuditBackendRequest
	enable := &cobra.Command{
		Use:   "enable PATH",
		Short: "Enable an audit backend at PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.admin.EnableAuditBackend(cmd.Context(), args[0], &req)
		},
	}
	enable.Flags().StringVar(&req.Type, "type", "file", "backend type")
	enable.Flags().StringVar(&req.Description, "description", "", "description")
	enable.Flags().StringToStringVar(&req.Options, "option", nil, "backend options as key=value")

	disable := &cobra.Command{
		Use:   "disable PATH",
		Short: "Disable the audit backend at PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.admin.DisableAuditBackend(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(enable, disable)
	return cmd
}
