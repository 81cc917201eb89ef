package redisq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmikgoswami/mediaforge/internal/domain"
	"github.com/atmikgoswami/mediaforge/internal/ports"
)

var _ ports.StatusStore = (*Client)(nil)

// Live status hashes expire on their own; terminal truth lives in the
// result store.
const statusTTL = 48 * time.Hour

func (c *Client) taskKey(id string) string { return "task:" + id }

func (c *Client) recentKey() string { return c.cfg.StreamKey + ":recent" }

func (c *Client) SetStatus(ctx context.Context, taskID string, s domain.Status) error {
	key := c.taskKey(taskID)
	if err := c.rdb.HSet(ctx, key, "status", string(s)).Err(); err != nil {
		return fmt.Errorf("set status %s: %w", taskID, err)
	}
	return c.rdb.Expire(ctx, key, statusTTL).Err()
}

func (c *Client) SetProgress(ctx context.Context, taskID string, pct int) error {
	return c.rdb.HSet(ctx, c.taskKey(taskID), "progress", pct).Err()
}

func (c *Client) Get(ctx context.Context, taskID string) (*domain.LiveStatus, error) {
	h, err := c.rdb.HGetAll(ctx, c.taskKey(taskID)).Result()
	if err != nil {
		return nil, err
	}
	if len(h) == 0 {
		return nil, nil
	}
	pct, _ := strconv.Atoi(h["progress"])
	return &domain.LiveStatus{
		TaskID:   taskID,
		Status:   domain.Status(h["status"]),
		Progress: pct,
	}, nil
}

func (c *Client) Recent(ctx context.Context, offset, limit int) ([]domain.LiveStatus, int, error) {
	total, err := c.rdb.ZCard(ctx, c.recentKey()).Result()
	if err != nil {
		return nil, 0, err
	}
	ids, err := c.rdb.ZRevRange(ctx, c.recentKey(), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, err
	}

	out := make([]domain.LiveStatus, 0, len(ids))
	for _, id := range ids {
		ls, err := c.Get(ctx, id)
		if err != nil || ls == nil {
			continue
		}
		out = append(out, *ls)
	}
	return out, int(total), nil
}

func (c *Client) trackRecent(ctx context.Context, taskID string, createdAt time.Time) error {
	return c.rdb.ZAdd(ctx, c.recentKey(), redis.Z{
		Score:  float64(createdAt.UnixMilli()),
		Member: taskID,
	}).Err()
}
