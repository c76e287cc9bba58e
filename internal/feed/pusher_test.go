// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/adaptor"
	"github.com/searchbridge/adaptor/internal/docid"
	"github.com/searchbridge/adaptor/internal/journal"
)

// fakeSender records submissions and fails the first failures calls.
type fakeSender struct {
	mu       sync.Mutex
	calls    int
	failures int
	kind     FailureKind
}

func (s *fakeSender) Send(ctx context.Context, datasource, xmlDoc string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures < 0 || s.calls <= s.failures {
		return &SendError{Kind: s.kind, Err: errors.New("boom")}
	}
	return nil
}

func (s *fakeSender) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// policyHandler mirrors the default policy's cutoff without its sleeps.
type policyHandler struct {
	attempts []int
}

func (h *policyHandler) allow(attempt int) bool {
	h.attempts = append(h.attempts, attempt)
	return attempt <= maxPushAttempts
}

func (h *policyHandler) FailedToConnect(ctx context.Context, err error, attempt int) bool {
	return h.allow(attempt)
}

func (h *policyHandler) FailedWriting(ctx context.Context, err error, attempt int) bool {
	return h.allow(attempt)
}

func (h *policyHandler) FailedReadingReply(ctx context.Context, err error, attempt int) bool {
	return h.allow(attempt)
}

func (h *policyHandler) FailedListing(ctx context.Context, err error, attempt int) bool {
	return h.allow(attempt)
}

func records(t *testing.T, ids ...string) []adaptor.Record {
	t.Helper()
	out := make([]adaptor.Record, len(ids))
	for i, id := range ids {
		out[i] = adaptor.NewRecordBuilder(docid.DocId(id)).MustBuild()
	}
	return out
}

func newTestPusher(t *testing.T, sender Sender, maxUrls int) (*Pusher, *journal.Journal) {
	t.Helper()
	logger := zerolog.Nop()
	j := journal.New()
	m := NewMaker(testCodec(t), "testfeed", "UTF-8", true, true)
	return NewPusher(m, sender, j, maxUrls, &logger), j
}

func TestPushRecordsGivesUpAfterTwelvePosts(t *testing.T) {
	sender := &fakeSender{failures: -1, kind: FailedToConnect}
	p, _ := newTestPusher(t, sender, 100)
	handler := &policyHandler{}

	failed, err := p.PushRecords(context.Background(), slices.Values(records(t, "a", "b", "c", "d", "e")), handler)
	if err == nil {
		t.Fatal("push succeeded against a dead appliance")
	}
	if failed == nil || failed.DocID() != "a" {
		t.Errorf("failed record = %v, want first of batch", failed)
	}
	if sender.sendCount() != 12 {
		t.Errorf("POSTs = %d, want 12", sender.sendCount())
	}
	// The handler is consulted once per failed POST and gives up when asked
	// about attempt 13.
	if len(handler.attempts) != 12 {
		t.Fatalf("handler consulted %d times, want 12", len(handler.attempts))
	}
	if last := handler.attempts[len(handler.attempts)-1]; last != 13 {
		t.Errorf("final attempt number = %d, want 13", last)
	}
}

func TestPushRecordsRetrySucceeds(t *testing.T) {
	sender := &fakeSender{failures: 2, kind: FailedReadingReply}
	p, j := newTestPusher(t, sender, 100)

	failed, err := p.PushRecords(context.Background(), slices.Values(records(t, "a", "b")), &policyHandler{})
	if err != nil {
		t.Fatal(err)
	}
	if failed != nil {
		t.Errorf("failed record = %v on a successful push", failed)
	}
	if sender.sendCount() != 3 {
		t.Errorf("POSTs = %d, want 3", sender.sendCount())
	}
	if s := j.Snapshot(); s.Pushed.Total != 2 {
		t.Errorf("journal pushed total = %d, want 2", s.Pushed.Total)
	}
}

func TestPushRecordsBatchBoundaries(t *testing.T) {
	for _, tc := range []struct {
		n, maxUrls, wantPosts int
	}{
		{5, 5, 1},
		{6, 5, 2},
		{10, 5, 2},
		{11, 5, 3},
	} {
		sender := &fakeSender{}
		p, _ := newTestPusher(t, sender, tc.maxUrls)

		ids := make([]string, tc.n)
		for i := range ids {
			ids[i] = fmt.Sprintf("doc%d", i)
		}
		if _, err := p.PushRecords(context.Background(), slices.Values(records(t, ids...)), &policyHandler{}); err != nil {
			t.Fatal(err)
		}
		if sender.sendCount() != tc.wantPosts {
			t.Errorf("%d records at maxUrls %d: POSTs = %d, want %d", tc.n, tc.maxUrls, sender.sendCount(), tc.wantPosts)
		}
	}
}

func TestPushRecordsStopsAfterAbandonedBatch(t *testing.T) {
	sender := &fakeSender{failures: -1, kind: FailedWriting}
	p, _ := newTestPusher(t, sender, 2)

	failed, err := p.PushRecords(context.Background(), slices.Values(records(t, "a", "b", "c", "d")), noRetryHandler{})
	if err == nil {
		t.Fatal("expected failure")
	}
	if failed == nil || failed.DocID() != "a" {
		t.Errorf("failed record = %v, want a", failed)
	}
	if sender.sendCount() != 1 {
		t.Errorf("POSTs = %d, want 1 (later batches must not be attempted)", sender.sendCount())
	}
}

type noRetryHandler struct{}

func (noRetryHandler) FailedToConnect(context.Context, error, int) bool    { return false }
func (noRetryHandler) FailedWriting(context.Context, error, int) bool      { return false }
func (noRetryHandler) FailedReadingReply(context.Context, error, int) bool { return false }

// blockingLister parks GetDocIDs until released.
type blockingLister struct {
	started  chan struct{}
	release  chan struct{}
	pushErr  error
	listings int
}

func (l *blockingLister) GetDocIDs(ctx context.Context, pusher adaptor.Pusher) error {
	l.listings++
	if l.started != nil {
		close(l.started)
		l.started = nil
	}
	if l.release != nil {
		<-l.release
	}
	return l.pushErr
}

func TestFullPushSingleFlight(t *testing.T) {
	sender := &fakeSender{}
	p, j := newTestPusher(t, sender, 10)

	lister := &blockingLister{started: make(chan struct{}), release: make(chan struct{})}
	done := make(chan error, 1)
	go func() {
		done <- p.FullPush(context.Background(), lister, &policyHandler{})
	}()
	<-lister.started

	if err := p.FullPush(context.Background(), &blockingLister{}, &policyHandler{}); !errors.Is(err, ErrPushAlreadyRunning) {
		t.Errorf("overlapping push: err = %v, want ErrPushAlreadyRunning", err)
	}

	close(lister.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if j.LastPushResult() != journal.PushSuccess {
		t.Errorf("last push result = %v, want success", j.LastPushResult())
	}
	// The gate reopens once the first push finishes.
	if err := p.FullPush(context.Background(), &blockingLister{}, &policyHandler{}); err != nil {
		t.Errorf("push after completion: %v", err)
	}
}

func TestFullPushInterrupted(t *testing.T) {
	sender := &fakeSender{}
	p, j := newTestPusher(t, sender, 10)

	ctx, cancel := context.WithCancel(context.Background())
	lister := &blockingLister{pushErr: context.Canceled}
	cancel()

	if err := p.FullPush(ctx, lister, &policyHandler{}); err == nil {
		t.Fatal("expected error from canceled push")
	}
	if j.LastPushResult() != journal.PushInterruption {
		t.Errorf("last push result = %v, want interruption", j.LastPushResult())
	}
}

func TestFullPushFailedAfterRetries(t *testing.T) {
	sender := &fakeSender{}
	p, j := newTestPusher(t, sender, 10)

	lister := &blockingLister{pushErr: errors.New("repository offline")}
	handler := &policyHandler{}
	if err := p.FullPush(context.Background(), lister, handler); err == nil {
		t.Fatal("expected error")
	}
	if j.LastPushResult() != journal.PushFailure {
		t.Errorf("last push result = %v, want failure", j.LastPushResult())
	}
	if lister.listings != maxPushAttempts {
		t.Errorf("listings = %d, want %d", lister.listings, maxPushAttempts)
	}
}

func TestDefaultHandlerPolicy(t *testing.T) {
	logger := zerolog.Nop()
	h := DefaultPushErrorHandler(&logger)

	if h.FailedToConnect(context.Background(), errors.New("x"), maxPushAttempts+1) {
		t.Error("attempt beyond the cap was allowed")
	}
	// Attempt 1 sleeps zero, so this returns promptly.
	if !h.FailedWriting(context.Background(), errors.New("x"), 1) {
		t.Error("first retry refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if h.FailedReadingReply(ctx, errors.New("x"), 5) {
		t.Error("canceled context still allowed a retry")
	}
	if time.Since(start) > time.Second {
		t.Error("canceled sleep did not abort promptly")
	}
}
