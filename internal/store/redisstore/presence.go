// Package redisstore provides a Redis-backed presence record store.
package redisstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/relaychat-server/internal/store"
)

const (
	fieldOnline   = "online"
	fieldLastSeen = "last_seen"
)

// PresenceStore keeps one hash per user with the online flag and last-seen time.
type PresenceStore struct {
	client *redis.Client
	prefix string
}

// NewPresenceStore creates a presence store. Keys are prefix + user id.
func NewPresenceStore(client *redis.Client, prefix string) *PresenceStore {
	return &PresenceStore{
		client: client,
		prefix: prefix,
	}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func (p *PresenceStore) key(userID int64) string {
	return p.prefix + strconv.FormatInt(userID, 10)
}

// SetOnline marks the user online.
func (p *PresenceStore) SetOnline(ctx context.Context, userID int64) error {
	if err := p.client.HSet(ctx, p.key(userID), fieldOnline, "1").Err(); err != nil {
		return fmt.Errorf("presence set online: %w", err)
	}
	return nil
}

// SetOffline marks the user offline and records the last-seen time.
func (p *PresenceStore) SetOffline(ctx context.Context, userID int64, lastSeen time.Time) error {
	err := p.client.HSet(ctx, p.key(userID),
		fieldOnline, "0",
		fieldLastSeen, lastSeen.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("presence set offline: %w", err)
	}
	return nil
}

// GetPresence returns the stored record. Users never seen return store.ErrNotFound.
func (p *PresenceStore) GetPresence(ctx context.Context, userID int64) (*store.Presence, error) {
	values, err := p.client.HGetAll(ctx, p.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence get: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("presence %d: %w", userID, store.ErrNotFound)
	}

	presence := &store.Presence{
		UserID: userID,
		Online: values[fieldOnline] == "1",
	}
	if raw, ok := values[fieldLastSeen]; ok {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("presence parse last seen: %w", err)
		}
		presence.LastSeen = &ts
	}
	return presence, nil
}

// Ping checks if the Redis connection is healthy.
func (p *PresenceStore) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (p *PresenceStore) Close() error {
	return p.client.Close()
}

var _ store.PresenceStore = (*PresenceStore)(nil)
