package config

import "time"

// SetDefaults fills every field the config file and environment left zero,
// following the donor example's SetDefaults (config/defaults.go).
func SetDefaults(cfg *Config) {
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Pool.MaxOpen == 0 {
		cfg.Database.Pool.MaxOpen = 25
	}
	if cfg.Database.Pool.MaxIdle == 0 {
		cfg.Database.Pool.MaxIdle = 5
	}
	if cfg.Database.Pool.MaxLifetime == 0 {
		cfg.Database.Pool.MaxLifetime = 300
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "scheduler"
	}

	if cfg.Producer.TickInterval == 0 {
		cfg.Producer.TickInterval = 5 * time.Second
	}
	if cfg.Producer.UpperFetchLimit == 0 {
		cfg.Producer.UpperFetchLimit = 30 * time.Second
	}
	if cfg.Producer.LowerFetchLimit == 0 {
		cfg.Producer.LowerFetchLimit = 30 * time.Minute
	}
	if cfg.Producer.BatchSize == 0 {
		cfg.Producer.BatchSize = 100
	}
	if cfg.Producer.LockTTL == 0 {
		cfg.Producer.LockTTL = 10 * time.Second
	}
	if cfg.Producer.HighWatermark == 0 {
		cfg.Producer.HighWatermark = 10000
	}
	if cfg.Producer.PartitionWidth == 0 {
		cfg.Producer.PartitionWidth = 10 * time.Second
	}
	if cfg.Producer.Flow == "" {
		cfg.Producer.Flow = "scheduler"
	}

	if cfg.Consumer.ConsumerGroup == "" {
		cfg.Consumer.ConsumerGroup = "scheduler-workers"
	}
	if cfg.Consumer.PartitionLookback == 0 {
		cfg.Consumer.PartitionLookback = 2
	}
	if cfg.Consumer.BlockTimeout == 0 {
		cfg.Consumer.BlockTimeout = 5 * time.Second
	}
	if cfg.Consumer.MaxRead == 0 {
		cfg.Consumer.MaxRead = 10
	}
	if cfg.Consumer.ReclaimerInterval == 0 {
		cfg.Consumer.ReclaimerInterval = 30 * time.Second
	}
	if cfg.Consumer.IdleTimeout == 0 {
		cfg.Consumer.IdleTimeout = 60 * time.Second
	}
	if cfg.Consumer.Concurrency == 0 {
		cfg.Consumer.Concurrency = 50
	}

	if cfg.Drainer.StreamCount == 0 {
		cfg.Drainer.StreamCount = 4
	}
	if cfg.Drainer.NumPartitions == 0 {
		cfg.Drainer.NumPartitions = 1
	}
	if cfg.Drainer.MaxReadCount == 0 {
		cfg.Drainer.MaxReadCount = 50
	}
	if cfg.Drainer.ShutdownGrace == 0 {
		cfg.Drainer.ShutdownGrace = 15 * time.Second
	}
	if cfg.Drainer.LoopInterval == 0 {
		cfg.Drainer.LoopInterval = 500 * time.Millisecond
	}
	if cfg.Drainer.MinLoopInterval == 0 {
		cfg.Drainer.MinLoopInterval = 200 * time.Millisecond
	}
	if cfg.Drainer.MaxLoopInterval == 0 {
		cfg.Drainer.MaxLoopInterval = 5 * time.Second
	}
	if cfg.Drainer.LockTTL == 0 {
		cfg.Drainer.LockTTL = 10 * time.Second
	}
	if cfg.Drainer.EntryRetries == 0 {
		cfg.Drainer.EntryRetries = 3
	}

	if cfg.Rescheduler.Interval == 0 {
		cfg.Rescheduler.Interval = 30 * time.Second
	}
	if cfg.Rescheduler.TTL == 0 {
		cfg.Rescheduler.TTL = 2 * time.Minute
	}

	if cfg.GracefulShutdownInterval == 0 {
		cfg.GracefulShutdownInterval = 30 * time.Second
	}
	if cfg.LoopInterval == 0 {
		cfg.LoopInterval = time.Second
	}
	if cfg.HealthAddr == "" {
		cfg.HealthAddr = ":8080"
	}
}
