package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-node/internal/logging"
)

// AggregationInterval defines the aggregation type.
type AggregationInterval string

// Metrics aggregation intervals.
const (
	AggregationMinute AggregationInterval = "MINUTE"
	AggregationHour   AggregationInterval = "HOUR"
	AggregationDay    AggregationInterval = "DAY"
)

const metricsKeyTempl = "lora:node:metrics:%s:%s:%d" // metrics key (identifier | aggregation | timestamp)

var (
	timeLocation         = time.Local
	aggregationIntervals = []AggregationInterval{AggregationMinute, AggregationHour, AggregationDay}
	metricsTTL           = map[AggregationInterval]time.Duration{
		AggregationMinute: time.Hour * 2,
		AggregationHour:   time.Hour * 48,
		AggregationDay:    time.Hour * 24 * 90,
	}
)

// MetricsRecord holds a single metrics record.
type MetricsRecord struct {
	Time    time.Time
	Metrics map[string]float64
}

// SetTimeLocation sets the time location used for aggregating metrics.
func SetTimeLocation(name string) error {
	var err error
	timeLocation, err = time.LoadLocation(name)
	if err != nil {
		return errors.Wrap(err, "load location error")
	}
	return nil
}

// SaveMetrics stores the given metrics into Redis for all aggregation
// intervals.
func SaveMetrics(ctx context.Context, name string, metrics MetricsRecord) error {
	if !Enabled() {
		return ErrNotEnabled
	}

	for _, agg := range aggregationIntervals {
		if err := SaveMetricsForInterval(ctx, agg, name, metrics); err != nil {
			return errors.Wrap(err, "save metrics for interval error")
		}
	}

	log.WithFields(log.Fields{
		"name":        name,
		"aggregation": aggregationIntervals,
		"ctx_id":      logging.ContextID(ctx),
	}).Debug("storage: metrics saved")

	return nil
}

// SaveMetricsForInterval aggregates and stores the given metrics.
func SaveMetricsForInterval(ctx context.Context, agg AggregationInterval, name string, metrics MetricsRecord) error {
	if len(metrics.Metrics) == 0 {
		return nil
	}

	ts, err := truncateTime(metrics.Time, agg)
	if err != nil {
		return err
	}

	key := GetRedisKey(metricsKeyTempl, name, agg, ts.Unix())

	pipe := RedisClient().TxPipeline()
	for k, v := range metrics.Metrics {
		pipe.HIncrByFloat(ctx, key, k, v)
	}
	pipe.PExpire(ctx, key, metricsTTL[agg])

	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "exec error")
	}

	return nil
}

// GetMetrics returns the metrics for the requested aggregation interval,
// one record per interval between start and end (inclusive).
func GetMetrics(ctx context.Context, agg AggregationInterval, name string, start, end time.Time) ([]MetricsRecord, error) {
	if !Enabled() {
		return nil, ErrNotEnabled
	}

	end, err := truncateTime(end, agg)
	if err != nil {
		return nil, err
	}

	var timestamps []time.Time
	for i := 0; ; i++ {
		ts, _ := truncateTime(addInterval(start, agg, i), agg)
		if ts.After(end) {
			break
		}
		timestamps = append(timestamps, ts)
	}

	if len(timestamps) == 0 {
		return nil, nil
	}

	pipe := RedisClient().Pipeline()
	var cmds []*redis.StringStringMapCmd
	for _, ts := range timestamps {
		cmds = append(cmds, pipe.HGetAll(ctx, GetRedisKey(metricsKeyTempl, name, agg, ts.Unix())))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "exec error")
	}

	var out []MetricsRecord
	for i, ts := range timestamps {
		metrics := MetricsRecord{
			Time:    ts,
			Metrics: make(map[string]float64),
		}

		for k, v := range cmds[i].Val() {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, errors.Wrap(err, "parse float error")
			}
			metrics.Metrics[k] = f
		}

		out = append(out, metrics)
	}

	return out, nil
}

func truncateTime(ts time.Time, agg AggregationInterval) (time.Time, error) {
	ts = ts.In(timeLocation)

	switch agg {
	case AggregationMinute:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), 0, 0, timeLocation), nil
	case AggregationHour:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, timeLocation), nil
	case AggregationDay:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, timeLocation), nil
	default:
		return ts, fmt.Errorf("unexpected aggregation interval: %s", agg)
	}
}

func addInterval(ts time.Time, agg AggregationInterval, n int) time.Time {
	ts = ts.In(timeLocation)

	switch agg {
	case AggregationMinute:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute()+n, 0, 0, timeLocation)
	case AggregationHour:
		return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour()+n, 0, 0, 0, timeLocation)
	default:
		return time.Date(ts.Year(), ts.Month(), ts.Day()+n, 0, 0, 0, 0, timeLocation)
	}
}
