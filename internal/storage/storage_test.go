package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/brocaar/chirpstack-node/internal/test"
	"github.com/brocaar/lorawan"
)

type StorageTestSuite struct {
	suite.Suite

	keyPrefix string
}

func (ts *StorageTestSuite) SetupSuite() {
	conf := test.GetConfig()
	if len(conf.Redis.Servers) == 0 {
		ts.T().Skip("TEST_REDIS_SERVERS is not set")
	}

	ts.keyPrefix = conf.Redis.KeyPrefix
	ts.Require().NoError(Setup(conf))
}

func (ts *StorageTestSuite) TearDownSuite() {
	ts.Require().NoError(Close())
}

func (ts *StorageTestSuite) SetupTest() {
	test.MustFlushRedis(RedisClient(), ts.keyPrefix)
}

func (ts *StorageTestSuite) TestFCntUp() {
	assert := require.New(ts.T())
	ctx := context.Background()
	devAddr := lorawan.DevAddr{0x26, 0x01, 0x17, 0x21}

	ts.T().Run("Get does not exist", func(t *testing.T) {
		assert := require.New(t)

		_, err := GetFCntUp(ctx, devAddr)
		assert.Equal(ErrDoesNotExist, err)
	})

	ts.T().Run("Save and get", func(t *testing.T) {
		assert := require.New(t)

		assert.NoError(SaveFCntUp(ctx, devAddr, 65535))
		fCnt, err := GetFCntUp(ctx, devAddr)
		assert.NoError(err)
		assert.EqualValues(65535, fCnt)

		assert.NoError(SaveFCntUp(ctx, devAddr, 12))
		fCnt, err = GetFCntUp(ctx, devAddr)
		assert.NoError(err)
		assert.EqualValues(12, fCnt)
	})

	ts.T().Run("Other device", func(t *testing.T) {
		assert := require.New(t)

		_, err := GetFCntUp(ctx, lorawan.DevAddr{1, 2, 3, 4})
		assert.Equal(ErrDoesNotExist, err)
	})

	ts.T().Run("Delete", func(t *testing.T) {
		assert := require.New(t)

		assert.NoError(DeleteFCntUp(ctx, devAddr))
		assert.Equal(ErrDoesNotExist, DeleteFCntUp(ctx, devAddr))

		_, err := GetFCntUp(ctx, devAddr)
		assert.Equal(ErrDoesNotExist, err)
	})

	keys, err := RedisClient().Keys(ctx, ts.keyPrefix+"*").Result()
	assert.NoError(err)
	assert.Len(keys, 0)
}

func (ts *StorageTestSuite) TestMetrics() {
	assert := require.New(ts.T())
	ctx := context.Background()
	assert.NoError(SetTimeLocation("Europe/Amsterdam"))

	start := time.Date(2026, 10, 14, 10, 15, 30, 0, timeLocation)
	for i := 0; i < 3; i++ {
		assert.NoError(SaveMetrics(ctx, "node:26011721", MetricsRecord{
			Time: start.Add(time.Duration(i) * time.Minute),
			Metrics: map[string]float64{
				"uplink_count": 1,
				"uplink_bytes": 15,
			},
		}))
	}

	ts.T().Run("Minute", func(t *testing.T) {
		assert := require.New(t)

		records, err := GetMetrics(ctx, AggregationMinute, "node:26011721", start, start.Add(3*time.Minute))
		assert.NoError(err)
		assert.Len(records, 4)
		for i := 0; i < 3; i++ {
			assert.Equal(time.Date(2026, 10, 14, 10, 15+i, 0, 0, timeLocation), records[i].Time)
			assert.Equal(map[string]float64{"uplink_count": 1, "uplink_bytes": 15}, records[i].Metrics)
		}
		assert.Len(records[3].Metrics, 0)
	})

	ts.T().Run("Hour", func(t *testing.T) {
		assert := require.New(t)

		records, err := GetMetrics(ctx, AggregationHour, "node:26011721", start, start)
		assert.NoError(err)
		assert.Len(records, 1)
		assert.Equal(time.Date(2026, 10, 14, 10, 0, 0, 0, timeLocation), records[0].Time)
		assert.Equal(map[string]float64{"uplink_count": 3, "uplink_bytes": 45}, records[0].Metrics)
	})

	ts.T().Run("Day", func(t *testing.T) {
		assert := require.New(t)

		records, err := GetMetrics(ctx, AggregationDay, "node:26011721", start.AddDate(0, 0, -1), start)
		assert.NoError(err)
		assert.Len(records, 2)
		assert.Len(records[0].Metrics, 0)
		assert.Equal(map[string]float64{"uplink_count": 3, "uplink_bytes": 45}, records[1].Metrics)
	})
}

func TestStorage(t *testing.T) {
	suite.Run(t, new(StorageTestSuite))
}

func TestDisabled(t *testing.T) {
	assert := require.New(t)

	conf := test.GetConfig()
	conf.Redis.Servers = nil
	assert.NoError(Setup(conf))
	assert.False(Enabled())
	assert.NoError(Close())

	ctx := context.Background()
	assert.Equal(ErrNotEnabled, SaveFCntUp(ctx, lorawan.DevAddr{}, 1))
	_, err := GetFCntUp(ctx, lorawan.DevAddr{})
	assert.Equal(ErrNotEnabled, err)
	assert.Equal(ErrNotEnabled, SaveMetrics(ctx, "test", MetricsRecord{}))
}

func TestGetRedisKey(t *testing.T) {
	assert := require.New(t)

	keyPrefix = "foo:"
	defer func() { keyPrefix = "" }()

	assert.Equal("foo:lora:node:fcnt_up:26011721", GetRedisKey(fCntUpKeyTempl, lorawan.DevAddr{0x26, 0x01, 0x17, 0x21}))
}
