// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package journal

import (
	"time"
)

// BucketStat aggregates one time slice of request activity.
type BucketStat struct {
	RequestCount          int64         `json:"requestCount"`
	ResponseDurationSum   time.Duration `json:"responseDurationSum"`
	ResponseDurationMax   time.Duration `json:"responseDurationMax"`
	ProcessingCount       int64         `json:"processingCount"`
	ProcessingDurationSum time.Duration `json:"processingDurationSum"`
	ProcessingDurationMax time.Duration `json:"processingDurationMax"`
	BytesIn               int64         `json:"bytesIn"`
	BytesOut              int64         `json:"bytesOut"`
}

// statWindow is a circular buffer of per-bucket stats covering
// len(buckets) * resolution of recent history.
type statWindow struct {
	buckets    []BucketStat
	resolution time.Duration
	idx        int
	// pendingEnd is the exclusive end of the bucket at idx.
	pendingEnd time.Time
}

func newStatWindow(n int, resolution time.Duration, start time.Time) *statWindow {
	return &statWindow{
		buckets:    make([]BucketStat, n),
		resolution: resolution,
		pendingEnd: start.Truncate(resolution).Add(resolution),
	}
}

// span is the total history the window covers.
func (w *statWindow) span() time.Duration {
	return w.resolution * time.Duration(len(w.buckets))
}

// current returns the bucket covering now, advancing and resetting buckets
// as wall time moves past bucket boundaries. Must be called with the
// journal mutex held.
func (w *statWindow) current(now time.Time) *BucketStat {
	if now.Before(w.pendingEnd) {
		return &w.buckets[w.idx]
	}
	if now.Sub(w.pendingEnd) >= w.span() {
		// The whole window has lapsed; drop everything and realign.
		for i := range w.buckets {
			w.buckets[i] = BucketStat{}
		}
		w.pendingEnd = now.Truncate(w.resolution).Add(w.resolution)
		return &w.buckets[w.idx]
	}
	for !w.pendingEnd.After(now) {
		w.idx = (w.idx + 1) % len(w.buckets)
		w.buckets[w.idx] = BucketStat{}
		w.pendingEnd = w.pendingEnd.Add(w.resolution)
	}
	return &w.buckets[w.idx]
}

// WindowSnapshot is a deep clone of one stat window, ordered oldest bucket
// first.
type WindowSnapshot struct {
	Resolution time.Duration `json:"resolutionMillis"`
	Buckets    []BucketStat  `json:"buckets"`
}

func (w *statWindow) snapshot(now time.Time) WindowSnapshot {
	// Advance first so the snapshot never contains stale buckets.
	w.current(now)
	out := WindowSnapshot{
		Resolution: w.resolution,
		Buckets:    make([]BucketStat, len(w.buckets)),
	}
	n := len(w.buckets)
	for i := 0; i < n; i++ {
		out.Buckets[i] = w.buckets[(w.idx+1+i)%n]
	}
	return out
}
