package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blueberrycongee/vaultclient"
	"github.com/blueberrycongee/vaultclient/internal/observability"
	"github.com/blueberrycongee/vaultclient/pkg/credentials"
)

// app carries state shared by all subcommands of one invocation.
type app struct {
	v       *viper.Viper
	admin   *vaultclient.AdminClient
	crypto  *vaultclient.CryptoClient
	tracing *observability.TracerProvider
	logger  *slog.Logger
	stderr  io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), stderr: os.Stderr}

	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Read and manage secrets in a Vault-style secrets service",
		Version:       vaultclient.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		Long: `vaultctl talks to a secrets service over its HTTP API.

The token is taken from --token, then VAULT_TOKEN, then the vault.token
property (see --properties), then the token file. The address is taken from
--address, then VAULT_ADDR, then the vault.addr property.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return a.init(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML config file")
	flags.String("address", "", "service address, e.g. https://vault:8200")
	flags.String("token", "", "token to use before any other source")
	flags.String("token-file", credentials.DefaultTokenFile(), "file holding a token")
	flags.Duration("token-file-ttl", 30*time.Second, "how long a token read from the token file is reused")
	flags.String("properties", "", "properties file (KEY=VALUE lines) with vault.token or vault.addr")
	flags.Duration("timeout", vaultclient.DefaultTimeout, "per-request timeout")
	flags.Int("max-retries", 0, "retries for 429 and 5xx responses")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	flags.Bool("log-json", false, "log as JSON")
	flags.String("otlp-endpoint", "", "export traces to this OTLP gRPC endpoint")

	_ = a.v.BindPFlags(flags)
	a.v.SetEnvPrefix("VAULTCTL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root.AddCommand(
		newReadCmd(a),
		newWriteCmd(a),
		newListCmd(a),
		newDeleteCmd(a),
		newResolveCmd(a),
		newTokenCmd(a),
		newSysCmd(a),
		newTransitCmd(a),
		newRawCmd(a),
	)
	return root
}

func (a *app) init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	level, err := observability.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return err
	}
	logger := observability.NewLogger(observability.LoggerConfig{
		Level:      level,
		Output:     a.stderr,
		JSONFormat: a.v.GetBool("log-json"),
	}, observability.NewRedactor())
	a.logger = logger

	if endpoint := a.v.GetString("otlp-endpoint"); endpoint != "" {
		cfg := observability.DefaultTracingConfig()
		cfg.Enabled = true
		cfg.Endpoint = endpoint
		cfg.ServiceName = "vaultctl"
		a.tracing, err = observability.InitTracing(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
	}

	if path := a.v.GetString("properties"); path != "" {
		if err := credentials.LoadProperties(path); err != nil {
			return err
		}
	}

	opts := []vaultclient.Option{vaultclient.WithLogger(logger)}
	configPath := a.v.GetString("config")
	if configPath != "" {
		opts = append(opts, vaultclient.WithConfigFile(configPath), vaultclient.WithLogger(logger))
	}
	// With a config file, only flags the user actually set override it.
	override := func(key string) bool {
		return configPath == "" || a.v.IsSet(key)
	}
	if override("token") || override("token-file") {
		chain, err := a.credentialChain()
		if err != nil {
			return err
		}
		opts = append(opts, vaultclient.WithCredentials(chain))
	}
	if override("timeout") {
		opts = append(opts, vaultclient.WithTimeout(a.v.GetDuration("timeout")))
	}
	if override("max-retries") {
		opts = append(opts, vaultclient.WithMaxRetries(a.v.GetInt("max-retries")))
	}
	if addr := a.v.GetString("address"); addr != "" {
		opts = append(opts, vaultclient.WithAddress(addr))
	}
	if a.tracing != nil {
		opts = append(opts, vaultclient.WithTracer(a.tracing.Tracer()))
	}

	admin, err := vaultclient.NewAdmin(opts...)
	if err != nil {
		return err
	}
	a.admin = admin
	a.crypto = &vaultclient.CryptoClient{Client: admin.Client}
	return nil
}

// credentialChain orders the sources: --token, VAULT_TOKEN, the vault.token
// property, then the token file.
func (a *app) credentialChain() (*credentials.Chain, error) {
	var sources []credentials.Source
	if token := a.v.GetString("token"); token != "" {
		static, err := credentials.NewStaticSource(token)
		if err != nil {
			return nil, err
		}
		sources = append(sources, static)
	}
	sources = append(sources,
		credentials.NewEnvironmentSource(credentials.EnvToken),
		credentials.NewPropertySource(credentials.PropertyToken),
	)
	if path := a.v.GetString("token-file"); path != "" {
		sources = append(sources, credentials.Cached(credentials.NewFileSource(path), a.v.GetDuration("token-file-ttl")))
	}
	return credentials.NewChainFromList(sources)
}

func (a *app) close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var err error
	if a.admin != nil {
		err = a.admin.Close()
	}
	if a.tracing != nil {
		if shutdownErr := a.tracing.Shutdown(ctx); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
