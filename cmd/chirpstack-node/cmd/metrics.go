package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/brocaar/chirpstack-node/internal/config"
	"github.com/brocaar/chirpstack-node/internal/node"
	"github.com/brocaar/chirpstack-node/internal/storage"
)

var (
	metricsAggregation string
	metricsInterval    time.Duration
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print the aggregated uplink and downlink metrics of the configured node (requires Redis)",
	RunE: func(cmd *cobra.Command, args []string) error {
		agg, err := parseAggregation(metricsAggregation)
		if err != nil {
			return err
		}

		if err := storage.SetTimeLocation(config.C.Metrics.Timezone); err != nil {
			return errors.Wrap(err, "set time location error")
		}

		if err := storage.Setup(config.C); err != nil {
			return errors.Wrap(err, "setup storage error")
		}
		defer storage.Close()

		end := time.Now()
		records, err := storage.GetMetrics(context.Background(), agg, node.MetricsName(config.C.Node.DevAddr), end.Add(-metricsInterval), end)
		if err != nil {
			return errors.Wrap(err, "get metrics error")
		}

		printMetrics(cmd.OutOrStdout(), records)
		return nil
	},
}

func init() {
	metricsCmd.Flags().StringVar(&metricsAggregation, "aggregation", "HOUR", "aggregation interval (MINUTE, HOUR or DAY)")
	metricsCmd.Flags().DurationVar(&metricsInterval, "interval", 24*time.Hour, "time range to print, ending now")
}

func parseAggregation(s string) (storage.AggregationInterval, error) {
	agg := storage.AggregationInterval(strings.ToUpper(s))
	switch agg {
	case storage.AggregationMinute, storage.AggregationHour, storage.AggregationDay:
		return agg, nil
	default:
		return "", fmt.Errorf("unknown aggregation: %s", s)
	}
}

// printMetrics prints one line per record, metrics sorted by name. Records
// without metrics are skipped.
func printMetrics(w io.Writer, records []storage.MetricsRecord) {
	for _, r := range records {
		if len(r.Metrics) == 0 {
			continue
		}

		var names []string
		for k := range r.Metrics {
			names = append(names, k)
		}
		sort.Strings(names)

		fields := make([]string, 0, len(names))
		for _, k := range names {
			fields = append(fields, fmt.Sprintf("%s=%g", k, r.Metrics[k]))
		}

		fmt.Fprintf(w, "%s %s\n", r.Time.Format(time.RFC3339), strings.Join(fields, " "))
	}
}
