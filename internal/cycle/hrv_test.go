package cycle

import (
	"math"
	"testing"
	"time"
)

func samplesOf(values ...float64) []HRVSample {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]HRVSample, 0, len(values))
	for i, v := range values {
		out = append(out, HRVSample{Timestamp: base.Add(time.Duration(i) * time.Minute), Value: v})
	}
	return out
}

func TestComputeBaseline(t *testing.T) {
	b := ComputeBaseline(samplesOf(2, 4, 4, 4, 5, 5, 7, 9))
	if b.Mean != 5 {
		t.Fatalf("mean = %v, want 5", b.Mean)
	}
	// population std-dev of the classic example is exactly 2
	if math.Abs(b.StdDev-2) > 1e-12 {
		t.Fatalf("std_dev = %v, want 2", b.StdDev)
	}
	if b.SampleCount != 8 {
		t.Fatalf("sample_count = %d", b.SampleCount)
	}
}

func TestComputeBaselineEmpty(t *testing.T) {
	b := ComputeBaseline(nil)
	if b.Mean != 0 || b.StdDev != 0 || b.SampleCount != 0 {
		t.Fatalf("expected zero baseline, got %+v", b)
	}
	if !b.Empty() {
		t.Fatalf("expected empty baseline")
	}
}

func TestIsDrop(t *testing.T) {
	cases := []struct {
		current, mean float64
		want          bool
	}{
		{0, 0, false},
		{-5, 0, false},
		{1000, 0, false},
		{40, 50, true},
		{40.5, 50, false},
		{80, 100, true},
		{81, 100, false},
		{35, 50, true},
		{50, 50, false},
	}
	for _, tc := range cases {
		if got := IsDrop(tc.current, tc.mean); got != tc.want {
			t.Fatalf("IsDrop(%v, %v) = %v, want %v", tc.current, tc.mean, got, tc.want)
		}
	}
}
