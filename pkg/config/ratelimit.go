package config

import (
	"fmt"
	"time"

	"github.com/jinzhu/copier"

	"github.com/tendant/user-permission/pkg/ratelimit"
)

// RateLimitConfig contains per-IP limits for the login and register endpoints.
type RateLimitConfig struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" env-default:"true"`

	// Login: 10 per minute (brute force protection)
	LoginCapacity  int     `env:"RATE_LIMIT_LOGIN_CAPACITY" env-default:"10"`
	LoginPerMinute float64 `env:"RATE_LIMIT_LOGIN_PER_MINUTE" env-default:"10"`

	RegisterCapacity  int     `env:"RATE_LIMIT_REGISTER_CAPACITY" env-default:"5"`
	RegisterPerMinute float64 `env:"RATE_LIMIT_REGISTER_PER_MINUTE" env-default:"5"`

	BucketTTL time.Duration `env:"RATE_LIMIT_BUCKET_TTL" env-default:"1h"`
}

// ToRateLimit copies the settings into a ratelimit.Config.
func (c RateLimitConfig) ToRateLimit() (ratelimit.Config, error) {
	var out ratelimit.Config
	if err := copier.Copy(&out, &c); err != nil {
		return ratelimit.Config{}, fmt.Errorf("failed to copy rate limit config: %w", err)
	}
	return out, nil
}
