package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8000"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		BodyLimit       string        `yaml:"body_limit" default:"2M"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
		// CollectorTopic turns on error aggregation to Kafka when set.
		CollectorTopic     string        `yaml:"collector_topic"`
		CollectorInterval  time.Duration `yaml:"collector_interval" default:"30s"`
		CollectorThreshold int           `yaml:"collector_threshold" default:"100"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	RateLimit struct {
		Enabled bool `yaml:"enabled" default:"true"`
		// Backend is "memory" (token bucket per process) or "redis" (shared fixed window).
		Backend         string        `yaml:"backend" default:"memory"`
		Capacity        float64       `yaml:"capacity" default:"60"`
		RefillPerSecond float64       `yaml:"refill_per_second" default:"1"`
		Window          time.Duration `yaml:"window" default:"1m"`
	} `yaml:"rate_limit"`
	Explanation struct {
		GeminiAPIKey string        `yaml:"gemini_api_key"`
		BaseURL      string        `yaml:"base_url" default:"https://generativelanguage.googleapis.com"`
		Model        string        `yaml:"model" default:"gemini-pro"`
		Timeout      time.Duration `yaml:"timeout" default:"10s"`
		Retries      int           `yaml:"retries" default:"2"`
		CacheTTL     time.Duration `yaml:"cache_ttl" default:"10m"`
	} `yaml:"explanation"`
	News struct {
		NewsAPIKey      string        `yaml:"news_api_key"`
		NewsAPIURL      string        `yaml:"news_api_url" default:"https://newsapi.org/v2/everything"`
		AlphaVantageKey string        `yaml:"alpha_vantage_key"`
		AlphaVantageURL string        `yaml:"alpha_vantage_url" default:"https://www.alphavantage.co/query"`
		Timeout         time.Duration `yaml:"timeout" default:"5s"`
		CacheTTL        time.Duration `yaml:"cache_ttl" default:"5m"`
	} `yaml:"news"`
	Cache struct {
		MemoryMaxSize int           `yaml:"memory_max_size" default:"1000"`
		MemoryTTL     time.Duration `yaml:"memory_ttl" default:"1m"`
		Redis         struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"candleinsight"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Archive struct {
		// Backend is one of none, kafka, clickhouse.
		Backend      string        `yaml:"backend" default:"none"`
		BufferSize   int           `yaml:"buffer_size" default:"1000"`
		MaxRPS       int           `yaml:"max_rps" default:"20"`
		RetryMin     time.Duration `yaml:"retry_min" default:"50ms"`
		RetryMax     time.Duration `yaml:"retry_max" default:"2s"`
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
	} `yaml:"archive"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		InsightsTopic string   `yaml:"insights_topic" default:"candle-insights"`
		// RequestsTopic enables the async analysis consumer when set.
		RequestsTopic string `yaml:"requests_topic"`
		ResultsTopic  string `yaml:"results_topic" default:"candle-insight-results"`
		RequiredAcks  int    `yaml:"required_acks" default:"-1"`
		Compression   string `yaml:"compression" default:"snappy"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"candle-insight"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Queue struct {
		// Enabled consumes analyze requests from Redis lists, next to or instead of Kafka.
		Enabled       bool          `yaml:"enabled"`
		Prefix        string        `yaml:"prefix" default:"candleinsight:queue"`
		RequestsTopic string        `yaml:"requests_topic" default:"analyze-requests"`
		ResultsTopic  string        `yaml:"results_topic" default:"analyze-results"`
		Workers       int           `yaml:"workers" default:"2"`
		RetryMax      int           `yaml:"retry_max" default:"3"`
		RetryDelay    time.Duration `yaml:"retry_delay" default:"5s"`
		BlockTimeout  time.Duration `yaml:"block_timeout" default:"1s"`
	} `yaml:"queue"`
	ClickHouse struct {
		// Enabled gates both the candle feature store and the archive table.
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"market"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		CandlesTable     string        `yaml:"candles_table" default:"candles"`
		InsightsTable    string        `yaml:"insights_table" default:"insights"`
	} `yaml:"clickhouse"`
}

// envOverrides lists the variables that beat the YAML file.
type envOverrides struct {
	Environment     string   `envconfig:"APP_ENV"`
	ServerPort      int      `envconfig:"SERVER_PORT"`
	LogLevel        string   `envconfig:"LOG_LEVEL"`
	GeminiAPIKey    string   `envconfig:"GEMINI_API_KEY"`
	NewsAPIKey      string   `envconfig:"NEWS_API_KEY"`
	AlphaVantageKey string   `envconfig:"ALPHA_VANTAGE_KEY"`
	RedisAddr       string   `envconfig:"REDIS_ADDR"`
	KafkaBrokers    []string `envconfig:"KAFKA_BROKERS"`
	ArchiveBackend  string   `envconfig:"ARCHIVE_BACKEND"`
	ClickHouseHost  string   `envconfig:"CLICKHOUSE_HOST"`
}

// Default returns a config holding only the struct defaults.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		// defaults are compile-time constants; a failure is a programming error
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

func parse(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Load reads a YAML file over the defaults and validates the result.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv is Load plus a .env file (if present) and environment overrides.
// A missing YAML file is tolerated so the service can run from the environment alone.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := parse(path)
	if errors.Is(err, os.ErrNotExist) {
		c, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	if env.Environment != "" {
		c.Environment = env.Environment
	}
	if env.ServerPort != 0 {
		c.Server.Port = env.ServerPort
	}
	if env.LogLevel != "" {
		c.Logging.Level = env.LogLevel
	}
	if env.GeminiAPIKey != "" {
		c.Explanation.GeminiAPIKey = env.GeminiAPIKey
	}
	if env.NewsAPIKey != "" {
		c.News.NewsAPIKey = env.NewsAPIKey
	}
	if env.AlphaVantageKey != "" {
		c.News.AlphaVantageKey = env.AlphaVantageKey
	}
	if env.RedisAddr != "" {
		c.Cache.Redis.Addr = env.RedisAddr
		c.Cache.Redis.Enabled = true
	}
	if len(env.KafkaBrokers) > 0 {
		c.Kafka.Brokers = env.KafkaBrokers
	}
	if env.ArchiveBackend != "" {
		c.Archive.Backend = env.ArchiveBackend
	}
	if env.ClickHouseHost != "" {
		c.ClickHouse.Host = env.ClickHouseHost
		c.ClickHouse.Enabled = true
	}
	return nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got '%s'", c.Logging.Format)
	}
	if c.Logging.CollectorTopic != "" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("logging.collector_topic requires kafka.brokers")
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case "memory":
			if c.RateLimit.Capacity < 1 || c.RateLimit.RefillPerSecond <= 0 {
				return fmt.Errorf("rate_limit.capacity must be >= 1 and refill_per_second > 0")
			}
		case "redis":
			if !c.Cache.Redis.Enabled {
				return fmt.Errorf("rate_limit.backend 'redis' requires cache.redis.enabled")
			}
			if c.RateLimit.Capacity < 1 || c.RateLimit.Window <= 0 {
				return fmt.Errorf("rate_limit.capacity must be >= 1 and window > 0")
			}
		default:
			return fmt.Errorf("rate_limit.backend must be 'memory' or 'redis', got '%s'", c.RateLimit.Backend)
		}
	}

	switch c.Archive.Backend {
	case "none":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("archive.backend 'kafka' requires kafka.brokers")
		}
		if c.Kafka.InsightsTopic == "" {
			return fmt.Errorf("kafka.insights_topic is required for the kafka archive")
		}
	case "clickhouse":
		if !c.ClickHouse.Enabled {
			return fmt.Errorf("archive.backend 'clickhouse' requires clickhouse.enabled")
		}
	default:
		return fmt.Errorf("archive.backend must be 'none', 'kafka' or 'clickhouse', got '%s'", c.Archive.Backend)
	}

	if c.Kafka.RequestsTopic != "" {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.requests_topic requires kafka.brokers")
		}
		if c.Kafka.ResultsTopic == "" {
			return fmt.Errorf("kafka.results_topic is required when requests_topic is set")
		}
	}
	if c.Queue.Enabled {
		if !c.Cache.Redis.Enabled {
			return fmt.Errorf("queue.enabled requires cache.redis.enabled")
		}
		if c.Queue.RequestsTopic == "" || c.Queue.ResultsTopic == "" {
			return fmt.Errorf("queue.requests_topic and queue.results_topic are required")
		}
		if c.Queue.Workers < 1 {
			return fmt.Errorf("queue.workers must be >= 1")
		}
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	return nil
}

// KafkaEnabled reports whether any component needs a Kafka producer.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0 &&
		(c.Archive.Backend == "kafka" || c.Kafka.RequestsTopic != "" || c.Logging.CollectorTopic != "")
}
