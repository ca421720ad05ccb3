// Package mock provides synthetic HRV and calendar sources for development.
package mock

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"omtobe/internal/cycle"
)

const (
	sampleInterval = 5 * time.Minute
	sampleLimit    = 10000
	meanHRV        = 50.0
	stdDevHRV      = 5.0
	floorHRV       = 20.0
)

// HRV emits a sample every five minutes drawn from N(50, 5), floored at 20ms.
type HRV struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewHRV(seed int64) *HRV {
	return &HRV{rnd: rand.New(rand.NewSource(seed))}
}

func (h *HRV) next() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return math.Max(floorHRV, meanHRV+h.rnd.NormFloat64()*stdDevHRV)
}

func (h *HRV) Latest(_ context.Context, now time.Time) (*cycle.HRVSample, error) {
	s := cycle.HRVSample{Timestamp: now.UTC().Truncate(sampleInterval), Value: h.next()}
	return &s, nil
}

func (h *HRV) Window(_ context.Context, start, end time.Time) ([]cycle.HRVSample, error) {
	var out []cycle.HRVSample
	for ts := start.UTC(); !ts.After(end) && len(out) < sampleLimit; ts = ts.Add(sampleInterval) {
		out = append(out, cycle.HRVSample{Timestamp: ts, Value: h.next()})
	}
	return out, nil
}

type fixture struct {
	title      string
	start, end int
}

var daily = []fixture{
	{"Board Meeting", 10, 11},
	{"Negotiation with Partner", 14, 15},
	{"Performance Review", 15, 16},
	{"! Critical Decision", 16, 17},
}

// Calendar repeats four high-stakes events every day at fixed UTC hours.
type Calendar struct{}

func (Calendar) Events(_ context.Context, start, end time.Time) ([]cycle.Event, error) {
	start, end = start.UTC(), end.UTC()
	var out []cycle.Event
	for d := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC); !d.After(end); d = d.AddDate(0, 0, 1) {
		for _, f := range daily {
			ev := cycle.Event{
				ID:    "mock_" + d.Format("20060102") + "_" + strings.ReplaceAll(f.title, " ", "_"),
				Title: f.title,
				Start: d.Add(time.Duration(f.start) * time.Hour),
				End:   d.Add(time.Duration(f.end) * time.Hour),
			}
			if ev.End.Before(start) || ev.Start.After(end) {
				continue
			}
			out = append(out, ev)
		}
	}
	return out, nil
}
