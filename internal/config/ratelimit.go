package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig drives the token-bucket middleware.  KeyStrategy is one
// of ip, user, ip_user, ip_user_route or deal_route.
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Capacity       int           `envconfig:"RATE_LIMIT_CAPACITY" default:"60"`
	Burst          int           `envconfig:"RATE_LIMIT_BURST" default:"0"`
	RefillTokens   int           `envconfig:"RATE_LIMIT_REFILL_TOKENS" default:"1"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
	TTL            time.Duration `envconfig:"RATE_LIMIT_TTL" default:"10m"`
	KeyStrategy    string        `envconfig:"RATE_LIMIT_KEY_STRATEGY" default:"ip_user_route"`
	Prefix         string        `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
	Debug          bool          `envconfig:"RATE_LIMIT_DEBUG" default:"false"`

	// DealCapacity is the bucket size for anonymous deal-token routes.
	DealCapacity int `envconfig:"DEAL_RATE_LIMIT_CAPACITY" default:"20"`
}

// LoadRateLimitConfig reads the RATE_LIMIT_ variables and clamps them to
// values the bucket can work with.  RATE_LIMIT_BURST overrides the
// capacity when positive.
func LoadRateLimitConfig() (RateLimitConfig, error) {
	var c RateLimitConfig
	if err := envconfig.Process("", &c); err != nil {
		return RateLimitConfig{}, err
	}
	if c.Burst > 0 {
		c.Capacity = c.Burst
	}
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c, nil
}

// DealRateLimitConfig is the stricter bucket for anonymous deal-token
// routes.  It shares the global switch and prefix.
func DealRateLimitConfig(base RateLimitConfig) RateLimitConfig {
	c := base
	c.Capacity = base.DealCapacity
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	c.KeyStrategy = "deal_route"
	return c
}
