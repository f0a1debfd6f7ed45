// Package config loads the scheduler's configuration, grounded in the
// donor example's layered viper/godotenv loader (acdtunes-spacetraders'
// infrastructure/config package): environment variables take precedence
// over a YAML config file, which takes precedence over built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/orbitalpay/scheduler/internal/store/postgres"
)

// RedisConfig configures the fast-store connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
	Prefix   string `mapstructure:"prefix" validate:"required"`
}

// ProducerConfig mirrors spec.md §6's enumerated producer.* options.
type ProducerConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	UpperFetchLimit time.Duration `mapstructure:"upper_fetch_limit"`
	LowerFetchLimit time.Duration `mapstructure:"lower_fetch_limit"`
	BatchSize       int           `mapstructure:"batch_size" validate:"min=1"`
	LockKey         string        `mapstructure:"lock_key"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	HighWatermark   int64         `mapstructure:"high_watermark"`
	PartitionWidth  time.Duration `mapstructure:"partition_width"`
	Flow            string        `mapstructure:"flow" validate:"required"`
}

// ConsumerConfig mirrors spec.md §6's enumerated consumer.* options.
type ConsumerConfig struct {
	ConsumerGroup     string        `mapstructure:"consumer_group" validate:"required"`
	Disabled          bool          `mapstructure:"disabled"`
	PartitionLookback int           `mapstructure:"partition_lookback"`
	BlockTimeout      time.Duration `mapstructure:"block_timeout"`
	MaxRead           int64         `mapstructure:"max_read" validate:"min=1"`
	ReclaimerInterval time.Duration `mapstructure:"reclaimer_interval"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	Concurrency       int           `mapstructure:"concurrency" validate:"min=1"`
}

// DrainerConfig mirrors spec.md §6's enumerated drainer.* options.
type DrainerConfig struct {
	StreamCount     int           `mapstructure:"stream_count" validate:"min=1"`
	NumPartitions   int           `mapstructure:"num_partitions" validate:"min=1"`
	MaxReadCount    int64         `mapstructure:"max_read_count" validate:"min=1"`
	ShutdownGrace   time.Duration `mapstructure:"shutdown_interval"`
	LoopInterval    time.Duration `mapstructure:"loop_interval"`
	MinLoopInterval time.Duration `mapstructure:"min_loop_interval"`
	MaxLoopInterval time.Duration `mapstructure:"max_loop_interval"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	EntryRetries    int           `mapstructure:"entry_retries" validate:"min=0"`
}

// ReschedulerConfig configures the orphan-recovery sweep.
type ReschedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Config is the top-level configuration struct covering every enumerated
// option of spec.md §6.
type Config struct {
	Database                 postgres.DatabaseConfig `mapstructure:"database"`
	Redis                    RedisConfig             `mapstructure:"redis"`
	Producer                 ProducerConfig          `mapstructure:"producer"`
	Consumer                 ConsumerConfig          `mapstructure:"consumer"`
	Drainer                  DrainerConfig           `mapstructure:"drainer"`
	Rescheduler              ReschedulerConfig       `mapstructure:"rescheduler"`
	GracefulShutdownInterval time.Duration           `mapstructure:"graceful_shutdown_interval"`
	LoopInterval             time.Duration           `mapstructure:"loop_interval"`
	HealthAddr               string                  `mapstructure:"health_addr"`
	LogJSON                  bool                    `mapstructure:"log_json"`
}

// Load reads configuration from, in ascending priority: defaults, an
// optional YAML config file, a .env file, then SCHED_-prefixed environment
// variables.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/scheduler")
	}

	v.SetEnvPrefix("SCHED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	SetDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
