package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agencyflow/agency-oauth/internal/config"
)

// loadOptions are the flags shared by serve and config
type loadOptions struct {
	configPath string
	addr       string
	issuer     string
	logLevel   string
}

func (o *loadOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.configPath, "config", "", "Path to a YAML config file")
	cmd.Flags().StringVar(&o.addr, "addr", "", "Listen address (overrides http.addr)")
	cmd.Flags().StringVar(&o.issuer, "issuer", "", "Issuer base URL (overrides oauth.issuer)")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// load reads the configuration and applies flag overrides
func (o *loadOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.addr != "" {
		cfg.HTTP.Addr = o.addr
	}
	if o.issuer != "" {
		cfg.OAuth.Issuer = o.issuer
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, nil
}

func newConfigCmd() *cobra.Command {
	var opts loadOptions
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  `Print the configuration authserver serve would run with. Secrets are redacted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	opts.register(cmd)
	return cmd
}
