package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "INVENTORY"

const (
	StoreDriverMySQL  = "mysql"
	StoreDriverRedis  = "redis"
	StoreDriverMemory = "memory"

	AlertModeEvery      = "every"
	AlertModeTransition = "transition"

	SinkLog    = "log"
	SinkRedis  = "redis"
	SinkPubSub = "pubsub"
)

type Config struct {
	App      AppConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
	Store    StoreConfig
	Stream   StreamConfig
	Applier  ApplierConfig
	Alerts   AlertsConfig
	Verifier VerifierConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env       string `envconfig:"INVENTORY_APP_ENV" default:"dev"`
	LogLevel  string `envconfig:"INVENTORY_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"INVENTORY_LOG_FORMAT" default:"json"`
	HTTPAddr  string `envconfig:"INVENTORY_HTTP_ADDR" default:":8080"`
	GRPCAddr  string `envconfig:"INVENTORY_GRPC_ADDR" default:":50051"`
}

type MySQLConfig struct {
	DSN             string        `envconfig:"INVENTORY_MYSQL_DSN" default:"root:root@tcp(localhost:3306)/inventory?parseTime=true"`
	MaxOpenConns    int           `envconfig:"INVENTORY_MYSQL_MAX_OPEN_CONNS" default:"50"`
	MaxIdleConns    int           `envconfig:"INVENTORY_MYSQL_MAX_IDLE_CONNS" default:"25"`
	ConnMaxLifetime time.Duration `envconfig:"INVENTORY_MYSQL_CONN_MAX_LIFETIME" default:"5m"`
}

type RedisConfig struct {
	Addr     string `envconfig:"INVENTORY_REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"INVENTORY_REDIS_PASSWORD"`
	DB       int    `envconfig:"INVENTORY_REDIS_DB" default:"0"`
	PoolSize int    `envconfig:"INVENTORY_REDIS_POOL_SIZE" default:"100"`
}

type StoreConfig struct {
	Driver   string `envconfig:"INVENTORY_STORE_DRIVER" default:"mysql"`
	SeedFile string `envconfig:"INVENTORY_STORE_SEED_FILE"`
}

type StreamConfig struct {
	// Driver selects the transaction log backend: redis or memory.
	Driver        string        `envconfig:"INVENTORY_STREAM_DRIVER" default:"redis"`
	Prefix        string        `envconfig:"INVENTORY_STREAM_PREFIX" default:"retail-sales-stream"`
	Partitions    int           `envconfig:"INVENTORY_STREAM_PARTITIONS" default:"2"`
	ConsumerGroup string        `envconfig:"INVENTORY_STREAM_CONSUMER_GROUP" default:"inventory-applier"`
	ReadBatch     int           `envconfig:"INVENTORY_STREAM_READ_BATCH" default:"50"`
	ReadBlock     time.Duration `envconfig:"INVENTORY_STREAM_READ_BLOCK" default:"2s"`
	LeaseTTL      time.Duration `envconfig:"INVENTORY_STREAM_LEASE_TTL" default:"15s"`
}

type ApplierConfig struct {
	CriticalFloor      int           `envconfig:"INVENTORY_CRITICAL_FLOOR" default:"5"`
	MaxConflictRetries int           `envconfig:"INVENTORY_MAX_CONFLICT_RETRIES" default:"5"`
	ApplyTimeout       time.Duration `envconfig:"INVENTORY_APPLY_TIMEOUT" default:"5s"`
	RetryBase          time.Duration `envconfig:"INVENTORY_RETRY_BASE" default:"100ms"`
	RetryMax           time.Duration `envconfig:"INVENTORY_RETRY_MAX" default:"10s"`
}

type AlertsConfig struct {
	Mode          string   `envconfig:"INVENTORY_ALERT_MODE" default:"every"`
	Sinks         []string `envconfig:"INVENTORY_ALERT_SINKS" default:"log"`
	RedisStream   string   `envconfig:"INVENTORY_ALERT_REDIS_STREAM" default:"retail-inventory-alerts"`
	PubSubProject string   `envconfig:"INVENTORY_ALERT_PUBSUB_PROJECT"`
	PubSubTopic   string   `envconfig:"INVENTORY_ALERT_PUBSUB_TOPIC" default:"retail-inventory-alerts"`
}

type VerifierConfig struct {
	Timeout      time.Duration `envconfig:"INVENTORY_VERIFY_TIMEOUT" default:"25s"`
	PollInterval time.Duration `envconfig:"INVENTORY_VERIFY_POLL_INTERVAL" default:"1s"`
}

func (c *Config) Validate() error {
	var problems []string

	switch c.Store.Driver {
	case StoreDriverMySQL, StoreDriverRedis, StoreDriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Stream.Driver {
	case StoreDriverRedis, StoreDriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown stream driver %q", c.Stream.Driver))
	}
	if c.Stream.Partitions <= 0 {
		problems = append(problems, "stream partitions must be positive")
	}
	if c.Stream.ReadBatch <= 0 {
		problems = append(problems, "stream read batch must be positive")
	}
	if c.Applier.CriticalFloor < 0 {
		problems = append(problems, "critical floor must not be negative")
	}
	switch c.Alerts.Mode {
	case AlertModeEvery, AlertModeTransition:
	default:
		problems = append(problems, fmt.Sprintf("unknown alert mode %q", c.Alerts.Mode))
	}
	for _, sink := range c.Alerts.Sinks {
		switch strings.TrimSpace(sink) {
		case SinkLog, SinkRedis:
		case SinkPubSub:
			if strings.TrimSpace(c.Alerts.PubSubProject) == "" {
				problems = append(problems, "pubsub alert sink requires INVENTORY_ALERT_PUBSUB_PROJECT")
			}
		default:
			problems = append(problems, fmt.Sprintf("unknown alert sink %q", sink))
		}
	}
	if c.Verifier.PollInterval <= 0 || c.Verifier.Timeout <= 0 {
		problems = append(problems, "verifier timeout and poll interval must be positive")
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *Config) NeedsRedis() bool {
	if c.Store.Driver == StoreDriverRedis || c.Stream.Driver == StoreDriverRedis {
		return true
	}
	for _, sink := range c.Alerts.Sinks {
		if strings.TrimSpace(sink) == SinkRedis {
			return true
		}
	}
	return false
}
