package candle

import (
	"fmt"

	"github.com/amirphl/strategy-lab/internal/tfutils"
)

const (
	// MinVolumeBars is the smallest input the volume resampler will regroup.
	MinVolumeBars = 10
	// MaxVolumeBars caps the number of bars the volume resampler emits.
	MaxVolumeBars = 20
)

// ResampleByTime aggregates candles into buckets of the given timeframe.
// Each output bar is stamped with the start of its bucket.
func ResampleByTime(candles []Candle, timeframe string) ([]Candle, error) {
	if len(candles) == 0 {
		return nil, nil
	}

	dur, err := tfutils.ParseTimeframe(timeframe)
	if err != nil {
		return nil, fmt.Errorf("invalid timeframe %s: %w", timeframe, err)
	}

	sorted := SortByTime(candles)

	var result []Candle
	for i, c := range sorted {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("invalid candle at index %d: %w", i, err)
		}

		bucket := c.Timestamp.Truncate(dur)
		if n := len(result); n > 0 && result[n-1].Timestamp.Equal(bucket) {
			result[n-1].merge(c)
			result[n-1].Timestamp = bucket
			continue
		}

		agg := c
		agg.Timestamp = bucket
		agg.Timeframe = timeframe
		agg.Source = "constructed"
		result = append(result, agg)
	}

	return result, nil
}

// ResampleByVolume regroups candles into at most MaxVolumeBars bars holding
// roughly equal traded volume. Inputs shorter than MinVolumeBars come back
// sorted but otherwise unchanged. Total volume is conserved.
func ResampleByVolume(candles []Candle) []Candle {
	sorted := SortByTime(candles)
	if len(sorted) < MinVolumeBars {
		return sorted
	}

	numBars := min(len(sorted), MaxVolumeBars)

	var total float64
	for _, c := range sorted {
		total += c.Volume
	}
	perBar := total / float64(numBars)

	// A group's first bar never closes it on its own, so every group but
	// the trailing one holds at least two bars.
	out := make([]Candle, 0, numBars)
	var agg Candle
	open := false
	for _, c := range sorted {
		if !open {
			agg = c
			open = true
			continue
		}
		agg.merge(c)
		if agg.Volume >= perBar {
			out = append(out, agg)
			open = false
		}
	}
	if open {
		out = append(out, agg)
	}

	return foldSurplus(out, numBars)
}

// foldSurplus merges any bars past limit into the last allowed bar.
func foldSurplus(bars []Candle, limit int) []Candle {
	if len(bars) <= limit {
		return bars
	}
	last := bars[limit-1]
	for _, c := range bars[limit:] {
		last.merge(c)
	}
	bars[limit-1] = last
	return bars[:limit]
}
