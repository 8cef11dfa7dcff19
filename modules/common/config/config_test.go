package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "key-single")
	t.Setenv("GEMINI_API_KEYS", "")
	t.Setenv("SCRAPER_API_URL", "https://scraper.internal/scrape")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"key-single"}, cfg.GeminiAPIKeys)
	assert.Equal(t, 5, cfg.BatchSizeThreshold)
	assert.Equal(t, 30*time.Second, cfg.BatchPollInterval)
	assert.Equal(t, 2880, cfg.BatchMaxPollAttempts)
	assert.Equal(t, 4, cfg.ImageConcurrency)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 24*time.Hour, cfg.JobMaxAge)
	assert.Equal(t, 30*time.Minute, cfg.SweepInterval)
	assert.Equal(t, "localhost:6379", cfg.GetRedisAddr())
}

func TestLoadConfigMultipleGeminiKeys(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GEMINI_API_KEYS", "key-a, key-b ,key-c")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"key-a", "key-b", "key-c"}, cfg.GeminiAPIKeys)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BATCH_SIZE_THRESHOLD", "12")
	t.Setenv("BATCH_POLL_INTERVAL_SECONDS", "5")
	t.Setenv("REDIS_ENABLED", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.BatchSizeThreshold)
	assert.Equal(t, 5*time.Second, cfg.BatchPollInterval)
	assert.False(t, cfg.RedisEnabled)
}

func TestLoadConfigMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GEMINI_API_KEYS", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}
