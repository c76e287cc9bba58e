// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package journal accumulates the runtime statistics behind the dashboard:
// push and request counters with unique-document cardinality, last push
// outcome, whether the appliance has fetched anything recently, and rolling
// time-window statistics at three granularities.
//
// All mutation happens under a single mutex. Snapshots deep-clone so
// dashboard readers never race with request handlers.
package journal

import (
	"sync"
	"time"

	"github.com/searchbridge/adaptor/internal/docid"
)

// PushResult is the outcome of the most recent full push.
type PushResult int

const (
	// PushUnknown means no full push has completed yet.
	PushUnknown PushResult = iota
	// PushSuccess means the last full push delivered every batch.
	PushSuccess
	// PushInterruption means the last full push was canceled mid-flight.
	PushInterruption
	// PushFailure means the last full push gave up on an error.
	PushFailure
)

func (r PushResult) String() string {
	switch r {
	case PushSuccess:
		return "SUCCESS"
	case PushInterruption:
		return "INTERRUPTION"
	case PushFailure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// retrieverSampleSize bounds the sliding window behind the retriever error
// rate status source.
const retrieverSampleSize = 1000

// Journal is the single statistics sink for the adaptor process.
type Journal struct {
	now func() time.Time

	mu sync.Mutex

	pushed         counter
	gsaRequests    counter
	nonGsaRequests counter

	lastPushResult  PushResult
	fullPushRunning bool
	lastGsaContact  time.Time

	// retrieverOutcomes is a circular buffer of recent content-retrieval
	// outcomes, true meaning error.
	retrieverOutcomes [retrieverSampleSize]bool
	retrieverNext     int
	retrieverFilled   int

	windows [3]*statWindow

	nextTraceID uint64
}

// New builds a Journal using the wall clock.
func New() *Journal {
	return NewWithClock(time.Now)
}

// NewWithClock builds a Journal with an injected clock for tests.
func NewWithClock(now func() time.Time) *Journal {
	j := &Journal{now: now}
	start := now()
	j.windows[0] = newStatWindow(60, time.Second, start)
	j.windows[1] = newStatWindow(60, time.Minute, start)
	j.windows[2] = newStatWindow(48, 30*time.Minute, start)
	return j
}

// counter tracks total increments and unique document cardinality.
type counter struct {
	total  int64
	unique map[docid.DocId]struct{}
}

func (c *counter) add(id docid.DocId) {
	c.total++
	if c.unique == nil {
		c.unique = make(map[docid.DocId]struct{})
	}
	c.unique[id] = struct{}{}
}

// RecordPushedDocIds notes that the given documents were submitted in a
// feed batch.
func (j *Journal) RecordPushedDocIds(ids []docid.DocId) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, id := range ids {
		j.pushed.add(id)
	}
}

// RecordGsaContentRequest notes a document fetch originating from the
// appliance.
func (j *Journal) RecordGsaContentRequest(id docid.DocId) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.gsaRequests.add(id)
	j.lastGsaContact = j.now()
}

// RecordNonGsaContentRequest notes a document fetch from anything other
// than the appliance (end users, probes).
func (j *Journal) RecordNonGsaContentRequest(id docid.DocId) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.nonGsaRequests.add(id)
}

// RecordFullPushStarted marks a full push as in progress. It returns false
// when another full push already runs; the caller must then drop its
// trigger.
func (j *Journal) RecordFullPushStarted() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fullPushRunning {
		return false
	}
	j.fullPushRunning = true
	return true
}

// RecordFullPushSuccessful records a completed full push.
func (j *Journal) RecordFullPushSuccessful() { j.finishPush(PushSuccess) }

// RecordFullPushInterrupted records a canceled full push.
func (j *Journal) RecordFullPushInterrupted() { j.finishPush(PushInterruption) }

// RecordFullPushFailed records an abandoned full push.
func (j *Journal) RecordFullPushFailed() { j.finishPush(PushFailure) }

func (j *Journal) finishPush(r PushResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fullPushRunning = false
	j.lastPushResult = r
}

// LastPushResult returns the outcome of the most recent full push.
func (j *Journal) LastPushResult() PushResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastPushResult
}

// RecordRetrieverOutcome feeds the error-rate window; isError marks a
// failed content retrieval.
func (j *Journal) RecordRetrieverOutcome(isError bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.retrieverOutcomes[j.retrieverNext] = isError
	j.retrieverNext = (j.retrieverNext + 1) % retrieverSampleSize
	if j.retrieverFilled < retrieverSampleSize {
		j.retrieverFilled++
	}
}

// RetrieverErrorRate returns the error fraction over the recent sample and
// the sample size considered.
func (j *Journal) RetrieverErrorRate() (rate float64, sample int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.retrieverFilled == 0 {
		return 0, 0
	}
	errs := 0
	for i := 0; i < j.retrieverFilled; i++ {
		if j.retrieverOutcomes[i] {
			errs++
		}
	}
	return float64(errs) / float64(j.retrieverFilled), j.retrieverFilled
}

// HasGsaCrawledWithinLastDay reports whether the appliance fetched any
// document in the last 24 hours.
func (j *Journal) HasGsaCrawledWithinLastDay() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.lastGsaContact.IsZero() {
		return false
	}
	return j.now().Sub(j.lastGsaContact) <= 24*time.Hour
}

// Trace follows one document request through processing and response. It
// is owned by the serving goroutine and handed back to the journal on
// completion.
type Trace struct {
	journal *Journal
	id      uint64

	start           time.Time
	processingDone  time.Time
	responseStarted time.Time
	bytesIn         int64
	bytesOut        int64
	finished        bool
}

// StartTrace begins following a request. Call on entry to the document
// handler.
func (j *Journal) StartTrace() *Trace {
	j.mu.Lock()
	j.nextTraceID++
	id := j.nextTraceID
	j.mu.Unlock()
	return &Trace{journal: j, id: id, start: j.now()}
}

// ProcessingDone marks the instant the adaptor finished producing the
// response.
func (t *Trace) ProcessingDone() {
	if t.processingDone.IsZero() {
		t.processingDone = t.journal.now()
	}
}

// ResponseStarted marks the first byte leaving for the client.
func (t *Trace) ResponseStarted() {
	if t.responseStarted.IsZero() {
		t.responseStarted = t.journal.now()
	}
}

// AddBytes accumulates request/response byte counts.
func (t *Trace) AddBytes(in, out int64) {
	t.bytesIn += in
	t.bytesOut += out
}

// Finish folds the trace into the stat windows. Safe to call once; later
// calls are ignored.
func (t *Trace) Finish() {
	if t.finished {
		return
	}
	t.finished = true
	now := t.journal.now()
	if t.processingDone.IsZero() {
		t.processingDone = now
	}
	if t.responseStarted.IsZero() {
		t.responseStarted = t.processingDone
	}
	processing := t.processingDone.Sub(t.start)
	response := now.Sub(t.responseStarted)

	j := t.journal
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, w := range j.windows {
		b := w.current(now)
		b.RequestCount++
		b.ResponseDurationSum += response
		if response > b.ResponseDurationMax {
			b.ResponseDurationMax = response
		}
		b.ProcessingCount++
		b.ProcessingDurationSum += processing
		if processing > b.ProcessingDurationMax {
			b.ProcessingDurationMax = processing
		}
		b.BytesIn += t.bytesIn
		b.BytesOut += t.bytesOut
	}
}

// CounterSnapshot is a point-in-time view of one counter.
type CounterSnapshot struct {
	Total  int64 `json:"total"`
	Unique int64 `json:"unique"`
}

// Snapshot is a deep clone of the journal for dashboard readers.
type Snapshot struct {
	Pushed            CounterSnapshot  `json:"pushed"`
	GsaRequests       CounterSnapshot  `json:"gsaRequests"`
	NonGsaRequests    CounterSnapshot  `json:"nonGsaRequests"`
	LastPushResult    string           `json:"lastPushResult"`
	FullPushRunning   bool             `json:"fullPushRunning"`
	GsaCrawledLastDay bool             `json:"gsaCrawledLastDay"`
	Windows           []WindowSnapshot `json:"windows"`
	When              time.Time        `json:"when"`
}

// Snapshot clones the journal state at the current instant.
func (j *Journal) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	s := Snapshot{
		Pushed:          CounterSnapshot{Total: j.pushed.total, Unique: int64(len(j.pushed.unique))},
		GsaRequests:     CounterSnapshot{Total: j.gsaRequests.total, Unique: int64(len(j.gsaRequests.unique))},
		NonGsaRequests:  CounterSnapshot{Total: j.nonGsaRequests.total, Unique: int64(len(j.nonGsaRequests.unique))},
		LastPushResult:  j.lastPushResult.String(),
		FullPushRunning: j.fullPushRunning,
		When:            now,
	}
	if !j.lastGsaContact.IsZero() && now.Sub(j.lastGsaContact) <= 24*time.Hour {
		s.GsaCrawledLastDay = true
	}
	for _, w := range j.windows {
		s.Windows = append(s.Windows, w.snapshot(now))
	}
	return s
}
