package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "kafka", cfg.IntakeTransport)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.KafkaBatchTimeoutDuration())
	assert.Equal(t, []string{"viagra", "casino en ligne", "crypto gratuite"}, cfg.SpamKeywords)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("INTAKE_TRANSPORT", "amqp")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("IMPORT_LOCK_WAIT", "5s")
	t.Setenv("PLACE_MATCH_THRESHOLD", "0.9")
	t.Setenv("DB_MIGRATION_VERSION", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "amqp", cfg.IntakeTransport)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.LockWait)
	assert.InDelta(t, 0.9, cfg.PlaceMatchThreshold, 1e-9)
	assert.Equal(t, 3, cfg.DatabaseMigrationVersion)
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv("IMPORT_LOCK_TTL", "five minutes")

	_, err := Load()
	assert.Error(t, err)
}

func TestTimeLocation(t *testing.T) {
	cfg := &Config{Timezone: "UTC"}
	loc, err := cfg.TimeLocation()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	cfg.Timezone = "Mars/Olympus"
	_, err = cfg.TimeLocation()
	assert.Error(t, err)
}
