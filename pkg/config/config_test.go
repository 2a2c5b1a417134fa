package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8000, c.Server.Port)
	assert.Equal(t, []string{"*"}, c.Server.CORSOrigins)
	assert.Equal(t, "gemini-pro", c.Explanation.Model)
	assert.Equal(t, 10*time.Minute, c.Explanation.CacheTTL)
	assert.Equal(t, 5*time.Second, c.News.Timeout)
	assert.Equal(t, "none", c.Archive.Backend)
	assert.Equal(t, "memory", c.RateLimit.Backend)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
	assert.False(t, c.KafkaEnabled())
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: production
server:
  port: 9090
logging:
  format: console
kafka:
  brokers: ["k1:9092", "k2:9092"]
  requests_topic: analyze-requests
archive:
  backend: kafka
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "console", c.Logging.Format)
	assert.Equal(t, "info", c.Logging.Level, "unset keys keep defaults")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "candle-insight-results", c.Kafka.ResultsTopic)
	assert.True(t, c.KafkaEnabled())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("NEWS_API_KEY", "nk")
	t.Setenv("SERVER_PORT", "8123")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("ARCHIVE_BACKEND", "kafka")

	c, err := LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gk", c.Explanation.GeminiAPIKey)
	assert.Equal(t, "nk", c.News.NewsAPIKey)
	assert.Equal(t, 8123, c.Server.Port)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "kafka", c.Archive.Backend)
}

func TestLoadWithEnvRejectsBadValue(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")
	_, err := LoadWithEnv("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"collector without brokers", func(c *Config) { c.Logging.CollectorTopic = "logs" }},
		{"unknown archive", func(c *Config) { c.Archive.Backend = "s3" }},
		{"kafka archive without brokers", func(c *Config) { c.Archive.Backend = "kafka" }},
		{"clickhouse archive disabled", func(c *Config) { c.Archive.Backend = "clickhouse" }},
		{"requests without brokers", func(c *Config) { c.Kafka.RequestsTopic = "req" }},
		{"redis limiter without redis", func(c *Config) { c.RateLimit.Backend = "redis" }},
		{"unknown limiter", func(c *Config) { c.RateLimit.Backend = "leaky" }},
		{"zero refill", func(c *Config) { c.RateLimit.RefillPerSecond = 0 }},
		{"queue without redis", func(c *Config) { c.Queue.Enabled = true }},
		{"queue without workers", func(c *Config) {
			c.Cache.Redis.Enabled = true
			c.Queue.Enabled = true
			c.Queue.Workers = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	c := Default()
	c.RateLimit.Enabled = false
	c.RateLimit.Backend = "leaky"
	assert.NoError(t, c.Validate(), "limiter settings are ignored when disabled")
}
