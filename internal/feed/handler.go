// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/adaptor"
)

// maxPushAttempts caps the default retry policy. With the linear backoff
// below the policy spends a bit over eleven minutes before giving up.
const maxPushAttempts = 12

// retryDelayUnit is the backoff slope: attempt n waits (n-1) units.
const retryDelayUnit = 5 * time.Second

// defaultHandler implements both retry contracts with the same policy:
// allow up to maxPushAttempts submissions, sleeping 5s, 10s, 15s and so on
// between them. The sleep aborts on context cancellation.
type defaultHandler struct {
	logger zerolog.Logger
}

// DefaultPushErrorHandler returns the standard batch retry policy.
func DefaultPushErrorHandler(logger *zerolog.Logger) adaptor.PushErrorHandler {
	return &defaultHandler{logger: *logger}
}

// DefaultListingErrorHandler returns the standard full-listing retry
// policy, identical in shape to the batch policy.
func DefaultListingErrorHandler(logger *zerolog.Logger) adaptor.ListingErrorHandler {
	return &defaultHandler{logger: *logger}
}

func (h *defaultHandler) FailedToConnect(ctx context.Context, err error, attempt int) bool {
	return h.retry(ctx, attempt)
}

func (h *defaultHandler) FailedWriting(ctx context.Context, err error, attempt int) bool {
	return h.retry(ctx, attempt)
}

func (h *defaultHandler) FailedReadingReply(ctx context.Context, err error, attempt int) bool {
	return h.retry(ctx, attempt)
}

func (h *defaultHandler) FailedListing(ctx context.Context, err error, attempt int) bool {
	return h.retry(ctx, attempt)
}

func (h *defaultHandler) retry(ctx context.Context, attempt int) bool {
	if attempt > maxPushAttempts {
		return false
	}
	delay := time.Duration(attempt-1) * retryDelayUnit
	h.logger.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("backing off before retry")
	return sleep(ctx, delay)
}

// sleep waits for d or until ctx is done, reporting whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
