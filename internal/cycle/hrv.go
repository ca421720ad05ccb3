package cycle

import (
	"math"
	"time"
)

// DropThreshold is the fraction below the baseline mean that counts as an HRV drop.
const DropThreshold = 0.20

// HRVSample is one heart-rate-variability reading in milliseconds.
type HRVSample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Baseline summarizes a sample window. StdDev is kept for observability only.
type Baseline struct {
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	SampleCount int     `json:"sample_count"`
}

// Empty reports whether the baseline carries no data and must not be used.
func (b Baseline) Empty() bool {
	return b.SampleCount == 0 || b.Mean == 0
}

// ComputeBaseline returns the population mean and standard deviation of samples.
// An empty window yields the zero Baseline.
func ComputeBaseline(samples []HRVSample) Baseline {
	if len(samples) == 0 {
		return Baseline{}
	}
	n := float64(len(samples))
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	mean := sum / n
	var sq float64
	for _, s := range samples {
		d := s.Value - mean
		sq += d * d
	}
	return Baseline{
		Mean:        mean,
		StdDev:      math.Sqrt(sq / n),
		SampleCount: len(samples),
	}
}

// IsDrop reports whether current is at or below (1-DropThreshold) of mean.
// A zero mean never yields a drop.
func IsDrop(current, mean float64) bool {
	if mean == 0 {
		return false
	}
	return current <= mean*(1-DropThreshold)
}
