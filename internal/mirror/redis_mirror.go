package mirror

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

const redisRoomKeyPrefix = "rooms:"

// RedisStore keeps one hash per room: "rooms:<roomId>:users" with one field
// per username holding the JSON record.
type RedisStore struct {
	rdc *redis.Client
}

func NewRedisStore(rdc *redis.Client) *RedisStore {
	return &RedisStore{rdc: rdc}
}

func roomUsersKey(roomID string) string {
	return redisRoomKeyPrefix + roomID + ":users"
}

func (s *RedisStore) Put(ctx context.Context, roomID, username string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdc.HSet(ctx, roomUsersKey(roomID), username, data).Err()
}

func (s *RedisStore) Delete(ctx context.Context, roomID, username string) error {
	key := roomUsersKey(roomID)
	if err := s.rdc.HDel(ctx, key, username).Err(); err != nil {
		return err
	}
	// Drop the hash once the last member is gone.
	n, err := s.rdc.HLen(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.rdc.Del(ctx, key).Err()
	}
	return nil
}

// Clear wipes every mirrored room; called once at process start so the mirror
// never resurrects rooms from a previous run.
func (s *RedisStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.rdc.Scan(ctx, cursor, redisRoomKeyPrefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.rdc.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
