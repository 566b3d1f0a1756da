package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "diarybot:state:"

// RedisStateStore keeps dialogs in redis so several bot instances can share them.
// Expiry is left to redis key TTLs.
type RedisStateStore struct {
	rdb *goredis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStateStore connects to addr and verifies the connection
func NewRedisStateStore(ctx context.Context, addr string, ttl time.Duration) (*RedisStateStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStateStoreWithClient(rdb, ttl), nil
}

// NewRedisStateStoreWithClient wraps an existing client
func NewRedisStateStoreWithClient(rdb *goredis.Client, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &RedisStateStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func (s *RedisStateStore) Get(ctx context.Context, userID int64) (*State, bool, error) {
	raw, err := s.rdb.Get(ctx, redisKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load state: %w", err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, false, fmt.Errorf("failed to decode state: %w", err)
	}
	if state.Data == nil {
		state.Data = make(map[string]string)
	}
	return &state, true, nil
}

func (s *RedisStateStore) Put(ctx context.Context, state *State) error {
	c := state.Clone()
	c.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := s.rdb.Set(ctx, redisKey(state.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Delete(ctx context.Context, userID int64) error {
	if err := s.rdb.Del(ctx, redisKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Close() error {
	return s.rdb.Close()
}

func redisKey(userID int64) string {
	return redisKeyPrefix + strconv.FormatInt(userID, 10)
}
