// Package healthkit reads HRV samples from a HealthKit export API.
package healthkit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"omtobe/internal/cycle"
)

// DataType is the HealthKit quantity type for SDNN heart-rate variability.
const DataType = "HKQuantityTypeIdentifierHeartRateVariabilitySDNN"

const (
	latestLookback = time.Hour
	windowLimit    = 10000
)

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

type samplesResponse struct {
	Samples []struct {
		Timestamp string  `json:"timestamp"`
		Value     float64 `json:"value"`
	} `json:"samples"`
}

// Samples fetches up to limit samples in [start, end].
func (c *Client) Samples(ctx context.Context, start, end time.Time, limit int) ([]cycle.HRVSample, error) {
	q := url.Values{}
	q.Set("start_date", start.UTC().Format(time.RFC3339))
	q.Set("end_date", end.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("data_type", DataType)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+"/v1/samples?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("healthkit status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var payload samplesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}
	out := make([]cycle.HRVSample, 0, len(payload.Samples))
	for _, s := range payload.Samples {
		ts, err := time.Parse(time.RFC3339Nano, s.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("sample timestamp %q: %w", s.Timestamp, err)
		}
		out = append(out, cycle.HRVSample{Timestamp: ts.UTC(), Value: s.Value})
	}
	return out, nil
}

// Latest returns the newest sample from the last hour, or nil.
func (c *Client) Latest(ctx context.Context, now time.Time) (*cycle.HRVSample, error) {
	samples, err := c.Samples(ctx, now.Add(-latestLookback), now, windowLimit)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Timestamp.After(samples[j].Timestamp) })
	latest := samples[0]
	return &latest, nil
}

// Window returns the samples in [start, end].
func (c *Client) Window(ctx context.Context, start, end time.Time) ([]cycle.HRVSample, error) {
	return c.Samples(ctx, start, end, windowLimit)
}
