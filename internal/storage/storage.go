package storage

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-node/internal/config"
)

var (
	redisClient redis.UniversalClient
	keyPrefix   string
)

// Setup configures the storage backend. When no Redis server is configured,
// the storage is disabled and Enabled returns false.
func Setup(c config.Config) error {
	if len(c.Redis.Servers) == 0 {
		log.Info("storage: no redis server configured, frame-counter will not be persisted")
		redisClient = nil
		return nil
	}

	log.WithField("servers", c.Redis.Servers).Info("storage: setting up Redis client")

	keyPrefix = c.Redis.KeyPrefix
	redisClient = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    c.Redis.Servers,
		Password: c.Redis.Password,
		DB:       c.Redis.Database,
	})

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return errors.Wrap(err, "storage: redis ping error")
	}

	return nil
}

// Enabled returns true when a Redis client has been configured.
func Enabled() bool {
	return redisClient != nil
}

// RedisClient returns the Redis client.
func RedisClient() redis.UniversalClient {
	return redisClient
}

// Close closes the Redis client.
func Close() error {
	if redisClient == nil {
		return nil
	}
	return redisClient.Close()
}

// GetRedisKey returns the Redis key given a template and parameters.
func GetRedisKey(tmpl string, params ...interface{}) string {
	return keyPrefix + fmt.Sprintf(tmpl, params...)
}
