package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMemoryDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_DRIVER", "memory")

	c, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, 60, c.AccessTTLMin)
	assert.Equal(t, int64(5<<20), c.UploadMaxBytes)
	assert.Equal(t, 587, c.SMTPPort)
	assert.Equal(t, 10*time.Second, c.ShutdownTimeout)
	assert.True(t, c.Dev())
}

const testSecret = "0123456789abcdef0123456789abcdef"

func TestParseRequiresSecret(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	for _, v := range []string{"", "   ", "short-secret"} {
		t.Setenv("JWT_SECRET", v)
		_, err := Parse()
		assert.Error(t, err, "JWT_SECRET=%q", v)
	}
}

func TestParseMySQLNeedsDatabase(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("DB_USER", "")
	_, err := Parse()
	assert.Error(t, err)

	t.Setenv("DB_USER", "app")
	t.Setenv("DB_NAME", "venue")
	c, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "3306", c.DBPort)
}

func TestParseRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := Parse()
	assert.Error(t, err)
}

func TestRateLimitClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	c, err := LoadRateLimitConfig()
	require.NoError(t, err)
	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, 5*time.Minute, c.TTL)

	d := DealRateLimitConfig(c)
	assert.Equal(t, "deal_route", d.KeyStrategy)
	assert.Equal(t, 20, d.Capacity)
}

func TestRateLimitDefaults(t *testing.T) {
	c, err := LoadRateLimitConfig()
	require.NoError(t, err)
	assert.True(t, c.Enabled)
	assert.Equal(t, 60, c.Capacity)
	assert.Equal(t, time.Second, c.RefillInterval)
	assert.Equal(t, 10*time.Minute, c.TTL)
	assert.Equal(t, "ip_user_route", c.KeyStrategy)
	assert.Equal(t, "rl", c.Prefix)
}

func TestRateLimitBurstAndDealCapacity(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "90")
	t.Setenv("DEAL_RATE_LIMIT_CAPACITY", "5")
	c, err := LoadRateLimitConfig()
	require.NoError(t, err)
	assert.Equal(t, 90, c.Capacity)
	assert.Equal(t, 5, DealRateLimitConfig(c).Capacity)
}

func TestRateLimitRejectsMalformed(t *testing.T) {
	t.Setenv("RATE_LIMIT_TTL", "ten minutes")
	_, err := LoadRateLimitConfig()
	assert.Error(t, err)
}

func TestRedisAddress(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6379")
	c, err := LoadRedisConfig()
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", c.Address())

	t.Setenv("REDIS_HOST", "10.0.0.7")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_TLS", "true")
	c, err = LoadRedisConfig()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7:6380", c.Address())
	assert.True(t, c.TLS)

	assert.Nil(t, NewRedisClient(RedisConfig{}))
}
