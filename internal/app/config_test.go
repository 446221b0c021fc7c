package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("IDENTITY_URL", "http://identity.local")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.True(t, cfg.LedgerAllowNegativeStock)
	require.Equal(t, 30*time.Second, cfg.StatusCacheTTL)
	require.Equal(t, "0 3 * * *", cfg.ReconcileCron)
	require.Equal(t, 2*time.Second, cfg.LedgerHookTimeout)
	require.False(t, cfg.KafkaEnabled())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresIdentityURL(t *testing.T) {
	t.Setenv("IDENTITY_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigParsesKafkaAndLedgerFlags(t *testing.T) {
	t.Setenv("IDENTITY_URL", "http://identity.local")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LEDGER_ALLOW_NEGATIVE_STOCK", "false")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.KafkaEnabled())
	require.False(t, cfg.LedgerAllowNegativeStock)
	require.True(t, cfg.IsProduction())
}

func TestLoadConfigRejectsEmptyTopicWithBrokers(t *testing.T) {
	t.Setenv("IDENTITY_URL", "http://identity.local")
	t.Setenv("KAFKA_BROKERS", "k1:9092")
	t.Setenv("KAFKA_TOPIC", " ")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsZeroHookTimeout(t *testing.T) {
	t.Setenv("IDENTITY_URL", "http://identity.local")
	t.Setenv("LEDGER_HOOK_TIMEOUT", "0s")

	_, err := LoadConfig()
	require.Error(t, err)
}
