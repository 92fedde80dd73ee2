package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const infoSnapshotKey = "info:snapshot"

// CacheService handles redis caching of the market snapshot served by /info.
// Every method tolerates a cold cache; callers fall back to the database.
type CacheService struct {
	client *redis.Client
}

func NewCacheService(client *redis.Client) *CacheService {
	return &CacheService{client: client}
}

// GetInfoSnapshot returns the cached snapshot, or nil on a miss.
func (s *CacheService) GetInfoSnapshot(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, infoSnapshotKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %v", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %v", err)
	}
	return &snap, nil
}

func (s *CacheService) SetInfoSnapshot(ctx context.Context, snap *Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("json marshal error: %v", err)
	}
	return s.client.Set(ctx, infoSnapshotKey, data, ttl).Err()
}

// InvalidateInfoSnapshot drops the snapshot; called after every settlement
// so /info never serves a stale cursor for long.
func (s *CacheService) InvalidateInfoSnapshot(ctx context.Context) error {
	return s.client.Del(ctx, infoSnapshotKey).Err()
}
