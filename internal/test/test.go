// Package test contains helpers shared by the test-suites.
package test

import (
	"context"
	"os"
	"strings"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-node/internal/config"
	"github.com/brocaar/lorawan"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

// GetConfig returns the test configuration. Redis and MQTT are only
// configured when TEST_REDIS_SERVERS and TEST_MQTT_SERVER are set.
func GetConfig() config.Config {
	log.SetLevel(log.FatalLevel)

	var c config.Config

	c.Node.DevAddr = lorawan.DevAddr{0x26, 0x01, 0x17, 0x21}
	c.Node.NwkSKey = lorawan.AES128Key{0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6, 0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c}
	c.Node.AppSKey = lorawan.AES128Key{0x2b, 0x7e, 0x15, 0x16, 0x28, 0xae, 0xd2, 0xa6, 0xab, 0xf7, 0x15, 0x88, 0x09, 0xcf, 0x4f, 0x3c}
	c.Node.MaxFrameSize = 80

	c.Redis.KeyPrefix = "test:"
	if v := os.Getenv("TEST_REDIS_SERVERS"); v != "" {
		c.Redis.Servers = strings.Split(v, ",")
	}

	c.Backend.MQTT.Server = os.Getenv("TEST_MQTT_SERVER")
	c.Backend.MQTT.Username = os.Getenv("TEST_MQTT_USERNAME")
	c.Backend.MQTT.Password = os.Getenv("TEST_MQTT_PASSWORD")
	c.Backend.MQTT.CleanSession = true
	c.Backend.MQTT.UplinkTopicTemplate = "node/{{ .DevAddr }}/up"
	c.Backend.MQTT.DownlinkTopicTemplate = "node/{{ .DevAddr }}/down"

	return c
}

// MustFlushRedis removes all keys using the given prefix.
func MustFlushRedis(c redis.UniversalClient, prefix string) {
	ctx := context.Background()
	keys, err := c.Keys(ctx, prefix+"*").Result()
	if err != nil {
		log.Fatal(err)
	}
	if len(keys) == 0 {
		return
	}
	if err := c.Del(ctx, keys...).Err(); err != nil {
		log.Fatal(err)
	}
}
