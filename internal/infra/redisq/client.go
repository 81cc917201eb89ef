package redisq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/atmikgoswami/mediaforge/internal/config"
)

type Client struct {
	cfg config.Redis
	rdb *redis.Client

	enqueueMaxWait time.Duration
}

func New(cfg config.Redis, enqueueMaxWait time.Duration) *Client {
	log.Info().Msgf("connecting to redis at %s", cfg.Addr)
	c := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{cfg: cfg, rdb: c, enqueueMaxWait: enqueueMaxWait}
}

// Connect verifies reachability. The gateway only produces, so this is
// all the setup it needs.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	log.Ctx(ctx).Info().Msg("connected to redis")
	return nil
}

// Init ensures the stream and consumer group exist before a worker
// starts receiving.
func (c *Client) Init(ctx context.Context) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}

	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.StreamKey, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.Ctx(ctx).Info().
		Str("stream", c.cfg.StreamKey).
		Str("group", c.cfg.Group).
		Msg("redis stream and consumer group ready")

	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error { return c.rdb.Close() }
