package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/llmrelay/internal/core/domain"
)

// Snapshot TTL: a stale snapshot from a dead process is worse than none.
const snapshotTTL = 24 * time.Hour

// SaveState persists the current connection state as a JSON snapshot.
func (c *Client) SaveState(ctx context.Context, state domain.ConnectionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal connection state: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key("connection_state"), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to save connection state: %w", err)
	}
	return nil
}

// LoadState restores the last persisted connection state. Returns
// found=false when no snapshot exists.
func (c *Client) LoadState(ctx context.Context) (domain.ConnectionState, bool, error) {
	var state domain.ConnectionState

	data, err := c.rdb.Get(ctx, c.key("connection_state")).Bytes()
	if errors.Is(err, redis.Nil) {
		return state, false, nil
	}
	if err != nil {
		return state, false, fmt.Errorf("failed to load connection state: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return state, false, fmt.Errorf("failed to decode connection state: %w", err)
	}
	return state, true, nil
}

// SaveStats persists cumulative request statistics.
func (c *Client) SaveStats(ctx context.Context, stats domain.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key("stats"), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

// LoadStats restores persisted request statistics. Returns found=false
// when no snapshot exists.
func (c *Client) LoadStats(ctx context.Context) (domain.Stats, bool, error) {
	var stats domain.Stats

	data, err := c.rdb.Get(ctx, c.key("stats")).Bytes()
	if errors.Is(err, redis.Nil) {
		return stats, false, nil
	}
	if err != nil {
		return stats, false, fmt.Errorf("failed to load stats: %w", err)
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, false, fmt.Errorf("failed to decode stats: %w", err)
	}
	return stats, true, nil
}
