package config

import (
	"context"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

// ConnectRedisWithRetry connects the client backing per-company sync locks.
// Call this from main() AFTER the HTTP server is listening.
func ConnectRedisWithRetry(ctx context.Context) {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
		logg.WithField("addr", redisAddr).Warn("REDIS_ADDRESS not set; using default")
	}

	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
			PoolSize: 10,
		})
		err := client.Ping(ctx).Err()
		if err == nil {
			rdb = client
			locker = redislock.New(rdb)
			logg.WithFields(logrus.Fields{"addr": redisAddr, "attempt": attempt}).Info("redis connected; company locks available")
			return
		}
		_ = client.Close()

		sleep := backoff(attempt)
		logg.WithFields(logrus.Fields{"addr": redisAddr, "attempt": attempt, "retry_in": sleep.String()}).
			WithError(err).Warn("redis connect failed")
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}
