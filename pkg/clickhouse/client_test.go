package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.Host = "ch"
	cfg.Database = "market"
	cfg.ReadTimeout = 0
	cfg.DialTimeout = 2 * time.Second
	assert.Equal(t, "clickhouse://default:@ch:9000/market?dial_timeout=2s", buildDSN(cfg))

	cfg.UseHTTP = true
	cfg.Port = 8123
	cfg.DialTimeout = 0
	cfg.MaxExecTime = 30 * time.Second
	cfg.AsyncInsert = true
	cfg.WaitForAsync = true
	assert.Equal(t, "http://default:@ch:8123/market?max_execution_time=30&async_insert=1&wait_for_async_insert=1", buildDSN(cfg))
}

func TestOptionsKeepDefaultsOnZero(t *testing.T) {
	cfg := defaultConfig()
	for _, opt := range []ClientOption{WithPort(0), WithDatabase(""), WithCredentials("", "pw"), WithTimeouts(0, time.Second, 0)} {
		opt(&cfg)
	}
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "default", cfg.Database)
	assert.Equal(t, "default", cfg.User)
	assert.Equal(t, "pw", cfg.Password)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, time.Second, cfg.ReadTimeout)
}

func TestQualifiedTable(t *testing.T) {
	assert.Equal(t, "market.candles_1m", QualifiedTable("market", "candles_1m"))
	assert.Equal(t, "other.t", QualifiedTable("market", "other.t"))
	assert.Equal(t, "t", QualifiedTable("", "t"))
}
