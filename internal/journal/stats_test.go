// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package journal

import (
	"testing"
	"time"
)

func TestWindowStaysInCurrentBucket(t *testing.T) {
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	w := newStatWindow(60, time.Second, start)

	b1 := w.current(start.Add(100 * time.Millisecond))
	b1.RequestCount++
	b2 := w.current(start.Add(800 * time.Millisecond))
	if b2.RequestCount != 1 {
		t.Error("same second landed in a different bucket")
	}
}

func TestWindowAdvancesAndResets(t *testing.T) {
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	w := newStatWindow(60, time.Second, start)

	w.current(start).RequestCount = 7
	idxBefore := w.idx

	// Two seconds later the pointer has moved and passed-over buckets are
	// zeroed.
	b := w.current(start.Add(2 * time.Second))
	if w.idx == idxBefore {
		t.Error("index did not advance")
	}
	if b.RequestCount != 0 {
		t.Error("new bucket not reset")
	}
	if !w.pendingEnd.After(start.Add(2 * time.Second)) {
		t.Errorf("pendingEnd = %v, not past now", w.pendingEnd)
	}
}

func TestWindowFullLapseRealigns(t *testing.T) {
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	w := newStatWindow(60, time.Second, start)

	for i := range w.buckets {
		w.buckets[i].RequestCount = int64(i + 1)
	}
	// Jump past the entire span: everything is dropped.
	later := start.Add(2 * time.Hour)
	w.current(later)
	for i, b := range w.buckets {
		if b.RequestCount != 0 {
			t.Fatalf("bucket %d survived full lapse: %+v", i, b)
		}
	}
	if !w.pendingEnd.After(later) {
		t.Errorf("pendingEnd = %v, want after %v", w.pendingEnd, later)
	}
}

func TestSnapshotOrdersOldestFirst(t *testing.T) {
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	w := newStatWindow(3, time.Second, start)

	w.current(start).RequestCount = 1
	w.current(start.Add(time.Second)).RequestCount = 2
	w.current(start.Add(2 * time.Second)).RequestCount = 3

	s := w.snapshot(start.Add(2 * time.Second))
	got := []int64{s.Buckets[0].RequestCount, s.Buckets[1].RequestCount, s.Buckets[2].RequestCount}
	want := []int64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("snapshot order = %v, want %v", got, want)
		}
	}
}
