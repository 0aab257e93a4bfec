package etl

import (
	"math"
	"sort"
	"time"

	"github.com/banzuzi-carioni/cross-border-electricity-flow-prediction/models"
)

type seriesKey struct {
	entityID string
	metric   string
}

type bucket struct {
	sum    float64
	count  int
	last   float64
	lastTS time.Time
}

// Resample aligns raw records onto the hourly UTC grid of the window.
// Sub-hourly observations collapse per the metric's aggregation policy.
// Missing hours inside a series are forward-filled when the gap is at most
// maxGap, otherwise the whole gap is dropped. Hours before the first
// observation of a series are always dropped. NaN values count as missing.
func Resample(records []models.TimeSeriesRecord, window models.TimeRange, schema Schema, maxGap time.Duration) []models.TimeSeriesRecord {
	series := make(map[seriesKey]map[time.Time]*bucket)
	for _, r := range records {
		if math.IsNaN(r.Value) {
			continue
		}
		ts := r.TS.UTC()
		if !window.Contains(ts) {
			continue
		}
		hour := ts.Truncate(time.Hour)

		key := seriesKey{entityID: r.EntityID, metric: r.Metric}
		buckets, ok := series[key]
		if !ok {
			buckets = make(map[time.Time]*bucket)
			series[key] = buckets
		}
		b, ok := buckets[hour]
		if !ok {
			b = &bucket{}
			buckets[hour] = b
		}
		b.sum += r.Value
		b.count++
		if !ts.Before(b.lastTS) {
			b.last = r.Value
			b.lastTS = ts
		}
	}

	maxGapHours := int(maxGap / time.Hour)
	start := window.Start.UTC().Truncate(time.Hour)
	hours := window.Hours()

	var out []models.TimeSeriesRecord
	for key, buckets := range series {
		agg := schema.Spec(key.metric).Agg

		// Hourly values, NaN = missing.
		values := make([]float64, hours)
		for i := range values {
			values[i] = math.NaN()
		}
		for hour, b := range buckets {
			i := int(hour.Sub(start) / time.Hour)
			if i < 0 || i >= hours {
				continue
			}
			if agg == AggMean {
				values[i] = b.sum / float64(b.count)
			} else {
				values[i] = b.last
			}
		}

		seen := false
		lastValue := 0.0
		for i := 0; i < hours; i++ {
			if !math.IsNaN(values[i]) {
				seen = true
				lastValue = values[i]
				out = append(out, models.TimeSeriesRecord{
					EntityID: key.entityID,
					TS:       start.Add(time.Duration(i) * time.Hour),
					Metric:   key.metric,
					Value:    values[i],
				})
				continue
			}
			if !seen {
				continue
			}
			// Measure the run of missing hours starting here.
			run := 1
			for i+run < hours && math.IsNaN(values[i+run]) {
				run++
			}
			if run <= maxGapHours {
				for j := 0; j < run; j++ {
					out = append(out, models.TimeSeriesRecord{
						EntityID: key.entityID,
						TS:       start.Add(time.Duration(i+j) * time.Hour),
						Metric:   key.metric,
						Value:    lastValue,
					})
				}
			}
			i += run - 1
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.TS.Equal(b.TS) {
			return a.TS.Before(b.TS)
		}
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		return a.Metric < b.Metric
	})
	return out
}
