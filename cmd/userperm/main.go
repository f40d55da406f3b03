package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/tendant/user-permission/pkg/app"
	"github.com/tendant/user-permission/pkg/config"
	"github.com/tendant/user-permission/pkg/identity"
	"github.com/tendant/user-permission/pkg/identity/api"
	"github.com/tendant/user-permission/pkg/metrics"
	"github.com/tendant/user-permission/pkg/password"
	"github.com/tendant/user-permission/pkg/ratelimit"
)

func main() {
	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
	}))
	slog.SetDefault(logger)

	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	if err := run(context.Background(), *envFile); err != nil {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	store, err := identity.NewStore(ctx, cfg.Persistence.Type, cfg.StoreConfig())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Failed to close store", "error", err)
		}
	}()

	hasher, err := password.NewHasher(cfg.Password.HashScheme)
	if err != nil {
		return err
	}
	service := identity.NewService(store, identity.WithHasher(hasher))

	rlConfig, err := cfg.RateLimit.ToRateLimit()
	if err != nil {
		return err
	}
	var (
		m      *metrics.Metrics
		server *app.App
		opts   []api.Option
		rlOpts []ratelimit.Option
	)
	if cfg.Metrics.Enabled {
		m = metrics.New("userperm")
		server = app.New(cfg.App, m.Middleware)
		server.R.Handle("/metrics", m.Handler())
		opts = append(opts, api.WithOutcomeRecorder(m))
		rlOpts = append(rlOpts, ratelimit.WithRecorder(m))
	} else {
		server = app.New(cfg.App)
	}

	limits := ratelimit.New(rlConfig, rlOpts...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	limits.Run(ctx)

	opts = append(opts,
		api.WithLoginMiddleware(limits.LoginHandlers()...),
		api.WithRegisterMiddleware(limits.RegisterHandlers()...),
	)

	handle, err := api.NewHandle(ctx, service, opts...)
	if err != nil {
		return err
	}
	handle.RegisterRoutes(server.R)

	slog.Info("User permission service ready",
		"addr", cfg.App.Addr(),
		"persistence", cfg.Persistence.Type,
		"password_hash", cfg.Password.HashScheme,
		"rate_limit", rlConfig.Enabled,
		"metrics", cfg.Metrics.Enabled,
	)
	return server.Run(ctx)
}
