// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package feed

import (
	"context"
	"errors"
	"iter"

	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/adaptor"
	"github.com/searchbridge/adaptor/internal/docid"
	"github.com/searchbridge/adaptor/internal/journal"
	"github.com/searchbridge/adaptor/internal/metrics"
)

// ErrPushAlreadyRunning is returned by FullPush when a previous full push
// has not finished yet.
var ErrPushAlreadyRunning = errors.New("feed: full push already running")

// DocIdLister is the slice of the adaptor contract the full push needs.
type DocIdLister interface {
	GetDocIDs(ctx context.Context, pusher adaptor.Pusher) error
}

// Pusher batches records into manifests and submits them, retrying per the
// caller's error handler. It also owns the single-flight full push.
type Pusher struct {
	maker   *Maker
	sender  Sender
	journal *journal.Journal
	logger  zerolog.Logger

	// maxUrls caps records per manifest; the appliance rejects oversized
	// feeds outright.
	maxUrls int
}

// NewPusher assembles the push pipeline.
func NewPusher(maker *Maker, sender Sender, j *journal.Journal, maxUrls int, logger *zerolog.Logger) *Pusher {
	return &Pusher{
		maker:   maker,
		sender:  sender,
		journal: j,
		logger:  logger.With().Str("component", "feed").Logger(),
		maxUrls: maxUrls,
	}
}

// PushRecords consumes the sequence in batches of at most maxUrls records,
// submitting each batch before pulling the next. When a batch is abandoned
// after retries, the first record of that batch is returned along with the
// submission error and no further batches are attempted.
func (p *Pusher) PushRecords(ctx context.Context, records iter.Seq[adaptor.Record], handler adaptor.PushErrorHandler) (*adaptor.Record, error) {
	if handler == nil {
		handler = DefaultPushErrorHandler(&p.logger)
	}

	batch := make([]adaptor.Record, 0, p.maxUrls)
	for r := range records {
		batch = append(batch, r)
		if len(batch) < p.maxUrls {
			continue
		}
		if err := p.sendBatch(ctx, batch, handler); err != nil {
			failed := batch[0]
			return &failed, err
		}
		batch = batch[:0]
	}
	if len(batch) > 0 {
		if err := p.sendBatch(ctx, batch, handler); err != nil {
			failed := batch[0]
			return &failed, err
		}
	}
	return nil, nil
}

// sendBatch renders and submits one batch, consulting the handler after
// each failure. attempt passed to the handler numbers the submission that
// would happen next, so after the first failed POST the handler sees 2.
func (p *Pusher) sendBatch(ctx context.Context, batch []adaptor.Record, handler adaptor.PushErrorHandler) error {
	xmlDoc, err := p.maker.Make(batch)
	if err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		err := p.sender.Send(ctx, p.maker.Datasource(), xmlDoc)
		if err == nil {
			p.journal.RecordPushedDocIds(batchIds(batch))
			metrics.FeedBatchesSent.Inc()
			metrics.FeedRecordsPushed.Add(float64(len(batch)))
			p.logger.Debug().Int("records", len(batch)).Msg("batch accepted")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var sendErr *SendError
		if !errors.As(err, &sendErr) {
			return err
		}
		metrics.FeedSendFailures.WithLabelValues(sendErr.Kind.String()).Inc()
		p.logger.Warn().
			Err(sendErr).
			Int("attempt", attempt).
			Str("kind", sendErr.Kind.String()).
			Msg("feed submission failed")
		if !consult(handler, ctx, sendErr, attempt+1) {
			return sendErr
		}
	}
}

// consult dispatches one failure to the handler method matching its kind.
func consult(handler adaptor.PushErrorHandler, ctx context.Context, err *SendError, attempt int) bool {
	switch err.Kind {
	case FailedToConnect:
		return handler.FailedToConnect(ctx, err, attempt)
	case FailedWriting:
		return handler.FailedWriting(ctx, err, attempt)
	default:
		return handler.FailedReadingReply(ctx, err, attempt)
	}
}

// FullPush runs one complete listing of the repository through the
// adaptor's GetDocIDs, retrying the listing per the handler. Only one full
// push runs at a time; overlapping calls return ErrPushAlreadyRunning
// without touching the adaptor. A nil handler selects the default policy.
func (p *Pusher) FullPush(ctx context.Context, lister DocIdLister, handler adaptor.ListingErrorHandler) error {
	if handler == nil {
		handler = DefaultListingErrorHandler(&p.logger)
	}
	if !p.journal.RecordFullPushStarted() {
		p.logger.Info().Msg("full push skipped, previous one still running")
		metrics.FullPushes.WithLabelValues("skipped").Inc()
		return ErrPushAlreadyRunning
	}
	p.logger.Info().Msg("full push started")

	for attempt := 1; ; attempt++ {
		err := lister.GetDocIDs(ctx, p)
		if err == nil {
			p.journal.RecordFullPushSuccessful()
			metrics.FullPushes.WithLabelValues("success").Inc()
			p.logger.Info().Msg("full push completed")
			return nil
		}
		if ctx.Err() != nil {
			p.journal.RecordFullPushInterrupted()
			metrics.FullPushes.WithLabelValues("interruption").Inc()
			p.logger.Info().Msg("full push interrupted")
			return err
		}
		p.logger.Warn().Err(err).Int("attempt", attempt).Msg("full listing failed")
		if !handler.FailedListing(ctx, err, attempt+1) {
			p.journal.RecordFullPushFailed()
			metrics.FullPushes.WithLabelValues("failure").Inc()
			return err
		}
	}
}

func batchIds(batch []adaptor.Record) []docid.DocId {
	ids := make([]docid.DocId, len(batch))
	for i, r := range batch {
		ids[i] = r.DocID()
	}
	return ids
}
