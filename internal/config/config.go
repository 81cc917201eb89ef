package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	SentryDSN   string `env:"SENTRY_DSN"`

	Redis    Redis
	Postgres Postgres
	S3       S3
	Worker   Worker
}

type Redis struct {
	Addr         string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password     string `env:"REDIS_PASSWORD"`
	DB           int    `env:"REDIS_DB"`
	StreamKey    string `env:"STREAM_KEY" envDefault:"mediaforge:tasks"`
	Group        string `env:"GROUP" envDefault:"mediaforge-workers"`
	DLQStreamKey string `env:"DLQ_STREAM_KEY" envDefault:"mediaforge:tasks:dead"`
}

type Postgres struct {
	DSN string `env:"POSTGRES_DSN,notEmpty"`
}

type S3 struct {
	Endpoint        string `env:"S3_ENDPOINT"`
	Region          string `env:"S3_REGION" envDefault:"auto"`
	Bucket          string `env:"S3_BUCKET,notEmpty"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID,notEmpty"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY,notEmpty"`
}

type Worker struct {
	Concurrency    int           `env:"WORKER_CONCURRENCY" envDefault:"4"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	LeaseDuration  time.Duration `env:"LEASE_DURATION" envDefault:"30s"`
	ReceiveBlock   time.Duration `env:"RECEIVE_BLOCK" envDefault:"5s"`
	EnqueueMaxWait time.Duration `env:"ENQUEUE_MAX_WAIT" envDefault:"5s"`
	InlineMaxBytes int           `env:"INLINE_MAX_BYTES" envDefault:"262144"`
}

func Load() *Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal().Err(err).Msg("failed to parse environment")
	}
	return &c
}
