package domain

import (
	"fmt"
	"time"
)

// Granularity is the fixed bucket width of a token timeline.
type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
)

// Duration returns the bucket width.
func (g Granularity) Duration() time.Duration {
	switch g {
	case GranularityMinute:
		return time.Minute
	case GranularityHour:
		return time.Hour
	case GranularityDay:
		return 24 * time.Hour
	}
	return 0
}

// ParseGranularity validates a granularity string, defaulting to hour
// when empty.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "":
		return GranularityHour, nil
	case GranularityMinute, GranularityHour, GranularityDay:
		return Granularity(s), nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// TokenTimelinePoint is one bucket of the usage time-series: the bucket
// start, its width, and the usage aggregated within it.
type TokenTimelinePoint struct {
	Bucket       time.Time   `json:"bucket"`
	Granularity  Granularity `json:"granularity"`
	Usage        TokenUsage  `json:"token_usage"`
	MessageCount int         `json:"message_count"`
}

// BuildTimeline folds usage events into dense, contiguous, ascending
// buckets covering exactly [end-hours, end]. Empty buckets are emitted
// with zero values so consumers can assume a regular sequence. Events
// outside the window are dropped; events on the trailing edge land in the
// final bucket.
func BuildTimeline(events []*UsageEvent, end time.Time, hours int, gran Granularity) []TokenTimelinePoint {
	width := gran.Duration()
	if hours <= 0 || width <= 0 {
		return []TokenTimelinePoint{}
	}
	window := time.Duration(hours) * time.Hour
	start := end.Add(-window)
	n := int(window / width)
	if time.Duration(n)*width < window {
		n++
	}

	points := make([]TokenTimelinePoint, n)
	for i := range points {
		points[i] = TokenTimelinePoint{
			Bucket:      start.Add(time.Duration(i) * width),
			Granularity: gran,
		}
	}
	for _, evt := range events {
		if evt.Timestamp.Before(start) || evt.Timestamp.After(end) {
			continue
		}
		idx := int(evt.Timestamp.Sub(start) / width)
		if idx >= n {
			idx = n - 1
		}
		points[idx].Usage.Add(evt.Usage)
		points[idx].MessageCount += evt.Messages
	}
	return points
}
