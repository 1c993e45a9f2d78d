package storage

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-node/internal/logging"
	"github.com/brocaar/lorawan"
)

const fCntUpKeyTempl = "lora:node:fcnt_up:%s"

// SaveFCntUp stores the uplink frame-counter that must be used by the next
// uplink of the given device.
func SaveFCntUp(ctx context.Context, devAddr lorawan.DevAddr, fCnt uint16) error {
	if !Enabled() {
		return ErrNotEnabled
	}

	key := GetRedisKey(fCntUpKeyTempl, devAddr)
	if err := RedisClient().Set(ctx, key, fCnt, 0).Err(); err != nil {
		return errors.Wrap(err, "set error")
	}

	log.WithFields(log.Fields{
		"dev_addr": devAddr,
		"f_cnt_up": fCnt,
		"ctx_id":   logging.ContextID(ctx),
	}).Debug("storage: uplink frame-counter saved")

	return nil
}

// GetFCntUp returns the stored uplink frame-counter of the given device.
func GetFCntUp(ctx context.Context, devAddr lorawan.DevAddr) (uint16, error) {
	if !Enabled() {
		return 0, ErrNotEnabled
	}

	key := GetRedisKey(fCntUpKeyTempl, devAddr)
	val, err := RedisClient().Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, ErrDoesNotExist
		}
		return 0, errors.Wrap(err, "get error")
	}

	fCnt, err := strconv.ParseUint(val, 10, 16)
	if err != nil {
		return 0, errors.Wrap(err, "parse frame-counter error")
	}

	return uint16(fCnt), nil
}

// DeleteFCntUp deletes the stored uplink frame-counter of the given device.
func DeleteFCntUp(ctx context.Context, devAddr lorawan.DevAddr) error {
	if !Enabled() {
		return ErrNotEnabled
	}

	key := GetRedisKey(fCntUpKeyTempl, devAddr)
	val, err := RedisClient().Del(ctx, key).Result()
	if err != nil {
		return errors.Wrap(err, "delete error")
	}
	if val == 0 {
		return ErrDoesNotExist
	}

	log.WithFields(log.Fields{
		"dev_addr": devAddr,
		"ctx_id":   logging.ContextID(ctx),
	}).Info("storage: uplink frame-counter deleted")

	return nil
}
