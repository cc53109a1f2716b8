package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bankKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("RIPLIMIT_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("RIPLIMIT_SECURE_BANK_KEY", bankKey)
	t.Setenv("RIPLIMIT_SWEEP_PAGE_SIZE", "25")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 25, cfg.Sweep.PageSize)
	assert.Equal(t, "Asia/Kolkata", cfg.Sweep.Timezone)
	assert.Equal(t, "CRON_TZ=Asia/Kolkata 0 * * * *", cfg.SweepSchedule())
	assert.Equal(t, int64(100), cfg.Refund.MinAmount)
	assert.Equal(t, "10", cfg.Refund.FeeINR)
	assert.Equal(t, 30*time.Second, cfg.Sweep.SettleTimeout)
	assert.Equal(t, uint(5), cfg.Retry.MaxAttempts)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riplimit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9090
auth:
  jwt_secret: from-file
secure:
  bank_key: `+bankKey+`
refund:
  fee_inr: "12.50"
kafka:
  brokers: ["k1:9092", "k2:9092"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "12.50", cfg.Refund.FeeINR)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, MustDecimal(cfg.Refund.FeeINR).Equal(MustDecimal("12.5")))
}

func TestValidate(t *testing.T) {
	t.Setenv("RIPLIMIT_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("RIPLIMIT_SECURE_BANK_KEY", bankKey)
	base, err := Load("")
	require.NoError(t, err)

	cases := map[string]func(c *Config){
		"page size":    func(c *Config) { c.Sweep.PageSize = 0 },
		"negative fee": func(c *Config) { c.Refund.FeeINR = "-1" },
		"bad rate":     func(c *Config) { c.Refund.INRPerRipLimit = "abc" },
		"timezone":     func(c *Config) { c.Sweep.Timezone = "Mars/Olympus" },
		"cron":         func(c *Config) { c.Sweep.Cron = "every hour" },
		"bank key":     func(c *Config) { c.Secure.BankKey = "short" },
		"jwt secret":   func(c *Config) { c.Auth.JWTSecret = "" },
		"node id":      func(c *Config) { c.Orders.NodeID = 4096 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := *base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
