package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/azi/cli/internal/auth"
	"github.com/azi/cli/internal/client"
	"github.com/azi/cli/internal/config"
	"github.com/azi/cli/internal/logging"
	"github.com/azi/cli/internal/output"
	"github.com/azi/cli/internal/service"
	"github.com/azi/cli/internal/transport"
)

// app holds everything a command needs. Network components are only built
// by connect, so offline commands never touch the token cache.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	printer *output.Printer

	http    *transport.Client
	cache   *auth.Cache
	engine  *auth.Engine
	client  *client.Client
	service *service.Service
}

// loadConfig reads the config file and applies the global flags on top.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if rootFlags.configFile != "" {
		cfg, err = config.LoadFromFile(rootFlags.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if rootFlags.tenant != "" {
		cfg.Tenant = rootFlags.tenant
	}
	if rootFlags.output.set {
		cfg.Output = rootFlags.output.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		log:     logging.New(cmd.ErrOrStderr(), logging.Level(rootFlags.debug, rootFlags.trace)),
		printer: output.New(cmd.OutOrStdout(), format),
	}, nil
}

// connectApp returns an app with an authentication engine and a service
// ready to issue requests.
func connectApp(cmd *cobra.Command) (*app, error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, err
	}
	if err := a.connect(cmd.Context(), cmd); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) connect(ctx context.Context, cmd *cobra.Command) error {
	httpClient, err := a.newTransport()
	if err != nil {
		return err
	}
	a.http = httpClient

	tokenPath, err := a.cfg.Auth.TokenFilePath()
	if err != nil {
		return err
	}
	tenant, err := a.resolveTenant(ctx, tokenPath)
	if err != nil {
		return err
	}

	a.cache = auth.NewCache(tokenPath, a.log)
	a.engine, err = auth.NewEngine(tenant, a.cache, httpClient,
		auth.WithLoginEndpoint(a.cfg.Auth.LoginEndpoint),
		auth.WithPrompt(cmd.ErrOrStderr()),
		auth.WithLogger(a.log),
	)
	if err != nil {
		return err
	}

	a.client = client.New(a.engine, httpClient,
		client.WithClientID(a.cfg.Auth.ClientID),
		client.WithLogger(a.log),
	)
	a.service = service.New(a.client, httpClient,
		service.WithEndpoint(a.cfg.HTTP.ManagementEndpoint),
		service.WithLogger(a.log),
	)
	return nil
}

func (a *app) newTransport() (*transport.Client, error) {
	timeout, err := a.cfg.HTTP.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	opts := []transport.Option{transport.WithTimeout(timeout), transport.WithLogger(a.log)}
	caFile, err := a.cfg.HTTP.CAFilePath()
	if err != nil {
		return nil, err
	}
	if caFile != "" {
		opts = append(opts, transport.WithCAFile(caFile))
	}
	return transport.New(opts...)
}

// resolveTenant picks the configured tenant, then the Azure CLI's default
// tenant, then "common".
func (a *app) resolveTenant(ctx context.Context, tokenPath string) (auth.Tenant, error) {
	if a.cfg.Tenant != "" {
		resolver := auth.NewTenantResolver(a.cfg.Auth.LoginEndpoint, a.http.HTTPClient(), a.log)
		return resolver.FromName(ctx, a.cfg.Tenant)
	}

	profilePath, err := a.cfg.Auth.ProfileFilePath()
	if err != nil {
		return auth.Tenant{}, err
	}
	if tenant, ok := auth.ReadDefaultTenant(profilePath, tokenPath, a.log); ok {
		return tenant, nil
	}
	a.log.Debug().Msg("No default tenant, using common")
	return auth.Common(), nil
}
