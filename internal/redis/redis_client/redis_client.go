package redis_client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient dials the Redis instance backing the membership mirror.
// All mirror I/O funnels through one background writer goroutine, so the
// pool stays small; timeouts are tight because a slow mirror must never
// back-pressure the writer for long.
func NewRedisClient(host string, port int) (*redis.Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	rc := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     8,
		MinIdleConns: 1,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		zap.L().Error("mirror.redis_connect", zap.String("addr", addr), zap.Error(err))
		return nil, fmt.Errorf("redis connect %s: %w", addr, err)
	}
	return rc, nil
}
