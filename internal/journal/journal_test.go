// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package journal

import (
	"sync"
	"testing"
	"time"

	"github.com/searchbridge/adaptor/internal/docid"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCountersTrackUniqueAndTotal(t *testing.T) {
	j := New()
	j.RecordPushedDocIds([]docid.DocId{"a", "b", "a"})
	j.RecordGsaContentRequest("a")
	j.RecordGsaContentRequest("a")
	j.RecordNonGsaContentRequest("c")

	s := j.Snapshot()
	if s.Pushed.Total != 3 || s.Pushed.Unique != 2 {
		t.Errorf("pushed = %+v, want total 3 unique 2", s.Pushed)
	}
	if s.GsaRequests.Total != 2 || s.GsaRequests.Unique != 1 {
		t.Errorf("gsaRequests = %+v, want total 2 unique 1", s.GsaRequests)
	}
	if s.NonGsaRequests.Total != 1 || s.NonGsaRequests.Unique != 1 {
		t.Errorf("nonGsaRequests = %+v, want total 1 unique 1", s.NonGsaRequests)
	}
}

func TestFullPushSingleFlightGate(t *testing.T) {
	j := New()
	if !j.RecordFullPushStarted() {
		t.Fatal("first start refused")
	}
	if j.RecordFullPushStarted() {
		t.Fatal("second start accepted while first is running")
	}
	j.RecordFullPushSuccessful()
	if j.LastPushResult() != PushSuccess {
		t.Errorf("last result = %v, want SUCCESS", j.LastPushResult())
	}
	if !j.RecordFullPushStarted() {
		t.Error("start refused after previous push finished")
	}
	j.RecordFullPushInterrupted()
	if j.LastPushResult() != PushInterruption {
		t.Errorf("last result = %v, want INTERRUPTION", j.LastPushResult())
	}
}

func TestGsaCrawledWithinLastDay(t *testing.T) {
	clock := newFakeClock()
	j := NewWithClock(clock.Now)

	if j.HasGsaCrawledWithinLastDay() {
		t.Error("fresh journal claims recent crawl")
	}
	j.RecordGsaContentRequest("a")
	if !j.HasGsaCrawledWithinLastDay() {
		t.Error("crawl just recorded but not reported")
	}
	clock.Advance(25 * time.Hour)
	if j.HasGsaCrawledWithinLastDay() {
		t.Error("crawl older than 24h still reported")
	}
}

func TestRetrieverErrorRate(t *testing.T) {
	j := New()
	for i := 0; i < 15; i++ {
		j.RecordRetrieverOutcome(false)
	}
	j.RecordRetrieverOutcome(true)
	rate, sample := j.RetrieverErrorRate()
	if sample != 16 {
		t.Fatalf("sample = %d, want 16", sample)
	}
	if rate != 1.0/16 {
		t.Errorf("rate = %v, want 1/16", rate)
	}
}

func TestTraceFeedsWindows(t *testing.T) {
	clock := newFakeClock()
	j := NewWithClock(clock.Now)

	tr := j.StartTrace()
	clock.Advance(40 * time.Millisecond)
	tr.ProcessingDone()
	tr.ResponseStarted()
	clock.Advance(10 * time.Millisecond)
	tr.AddBytes(0, 2048)
	tr.Finish()

	s := j.Snapshot()
	if len(s.Windows) != 3 {
		t.Fatalf("windows = %d, want 3", len(s.Windows))
	}
	for i, w := range s.Windows {
		var total int64
		var bytes int64
		for _, b := range w.Buckets {
			total += b.RequestCount
			bytes += b.BytesOut
		}
		if total != 1 {
			t.Errorf("window %d request count = %d, want 1", i, total)
		}
		if bytes != 2048 {
			t.Errorf("window %d bytesOut = %d, want 2048", i, bytes)
		}
	}
}

func TestWindowSizes(t *testing.T) {
	clock := newFakeClock()
	j := NewWithClock(clock.Now)
	s := j.Snapshot()

	wants := []struct {
		buckets    int
		resolution time.Duration
	}{
		{60, time.Second},
		{60, time.Minute},
		{48, 30 * time.Minute},
	}
	for i, want := range wants {
		if len(s.Windows[i].Buckets) != want.buckets {
			t.Errorf("window %d has %d buckets, want %d", i, len(s.Windows[i].Buckets), want.buckets)
		}
		if s.Windows[i].Resolution != want.resolution {
			t.Errorf("window %d resolution = %v, want %v", i, s.Windows[i].Resolution, want.resolution)
		}
	}
}
