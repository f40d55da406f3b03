// Package config loads user-permission settings from the environment.
//
// Values are read with cleanenv from `env` / `env-default` struct tags. An
// optional .env file is loaded first with godotenv, so real environment
// variables always win:
//
//	cfg, err := config.Load(".env")
//	if err != nil {
//		slog.Error("Failed to read configuration", "error", err)
//		os.Exit(1)
//	}
//
//	store, err := identity.NewStore(ctx, cfg.Persistence.Type, cfg.StoreConfig())
//
// # Persistence
//
// PERSISTENCE_TYPE selects the store: memory, file, sqlite or postgres.
// Only the settings of the selected store are used.
//
//	PERSISTENCE_TYPE=postgres
//	USERPERM_PG_HOST=localhost
//	USERPERM_PG_DATABASE=userperm_db
//
// # Rate Limiting
//
// Login and register are limited per client IP. RateLimitConfig.ToRateLimit
// converts the section into a ratelimit.Config.
package config
