// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package adaptor defines the contract between the framework and a concrete
// repository adaptor.
//
// A repository adaptor supplies three capabilities: enumerating document
// identifiers (pushed to the search appliance as feeds), serving document
// content on demand, and answering late-binding authorization questions for
// batches of documents. The framework owns scheduling, batching, retries,
// transport and the HTTP surface; the adaptor only talks to its repository.
//
// # Lifecycle
//
// The framework drives an adaptor through InitConfig (register configuration
// defaults), Init (acquire resources), repeated GetDocIDs / GetDocContent /
// IsUserAuthorized calls, and finally Destroy during shutdown. All blocking
// operations receive a context and are expected to unwind promptly when it
// is canceled.
package adaptor

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/searchbridge/adaptor/internal/acl"
	"github.com/searchbridge/adaptor/internal/config"
	"github.com/searchbridge/adaptor/internal/docid"
)

// ErrNotFound signals that a document does not exist in the repository.
// The serving layer maps it to 404.
var ErrNotFound = errors.New("adaptor: document not found")

// Identity is the authenticated principal on whose behalf an authorization
// question is asked.
type Identity struct {
	User   string
	Groups []string
}

// Pusher accepts streams of records for delivery to the appliance. The
// framework hands one to GetDocIDs; the adaptor may call PushRecords any
// number of times. Each call is synchronous against the batching stage, so
// backpressure is natural.
type Pusher interface {
	// PushRecords consumes the sequence in appliance-sized batches. On an
	// unrecoverable transport failure it returns the first record of the
	// failed batch; subsequent batches are not attempted. A nil handler
	// selects the default retry policy.
	PushRecords(ctx context.Context, records iter.Seq[Record], handler PushErrorHandler) (*Record, error)
}

// PushErrorHandler decides whether a failed batch submission is retried.
// attempt numbers the submission that would happen next, counting from 2
// after the first failure. The handler owns any backoff sleep and must
// honor context cancellation. Returning false abandons the batch.
type PushErrorHandler interface {
	FailedToConnect(ctx context.Context, err error, attempt int) bool
	FailedWriting(ctx context.Context, err error, attempt int) bool
	FailedReadingReply(ctx context.Context, err error, attempt int) bool
}

// ListingErrorHandler decides whether a failed full listing is retried,
// with the same attempt numbering and sleep ownership as PushErrorHandler.
type ListingErrorHandler interface {
	FailedListing(ctx context.Context, err error, attempt int) bool
}

// Request carries what the serving layer knows about an incoming document
// fetch.
type Request struct {
	// DocID identifies the requested document.
	DocID docid.DocId

	// LastAccess is the client's If-Modified-Since instant, zero when the
	// request was unconditional.
	LastAccess time.Time
}

// HasChangedSinceLastAccess reports whether content modified at lastModified
// needs to be re-sent to this client. Unconditional requests always do.
func (r Request) HasChangedSinceLastAccess(lastModified time.Time) bool {
	if r.LastAccess.IsZero() || lastModified.IsZero() {
		return true
	}
	return lastModified.After(r.LastAccess)
}

// Response is how an adaptor answers a document fetch. Exactly one of
// RespondNotModified or OutputStream must be called, unless the adaptor
// returns ErrNotFound. Metadata and content type must be set before the
// first write; afterwards the headers are on the wire.
type Response interface {
	// RespondNotModified tells the client its cached copy is current.
	RespondNotModified() error

	// OutputStream returns the destination for document bytes. Repeated
	// calls return the same writer.
	OutputStream() (io.Writer, error)

	// SetContentType declares the document media type.
	SetContentType(contentType string)

	// SetLastModified declares the repository modification time.
	SetLastModified(t time.Time)

	// AddMetadata attaches one metadata item to the document.
	AddMetadata(name, value string)

	// SetACL attaches the document's ACL for late-binding authorization.
	SetACL(a acl.ACL)
}

// Context is the framework-side environment handed to Init. It outlives the
// call; adaptors may retain it and push records outside of full listings.
type Context interface {
	// Config exposes the loaded configuration.
	Config() *config.Config

	// DocIdPusher returns the pusher feeding the appliance.
	DocIdPusher() Pusher
}

// IncrementalLister is optionally implemented by adaptors that can
// enumerate recently changed documents more cheaply than a full listing.
// The framework polls it on adaptor.incrementalPollPeriodMillis.
type IncrementalLister interface {
	GetModifiedDocIDs(ctx context.Context, pusher Pusher) error
}

// Adaptor is the contract a repository integration implements.
type Adaptor interface {
	// InitConfig lets the adaptor register configuration defaults before
	// the configuration is validated.
	InitConfig(cfg *config.Config)

	// Init prepares the adaptor for serving. It is called once, before any
	// other operation.
	Init(ctx context.Context, actx Context) error

	// GetDocIDs enumerates every document the repository wants indexed,
	// pushing records through the supplied pusher. It is invoked by the
	// scheduler for full listings.
	GetDocIDs(ctx context.Context, pusher Pusher) error

	// GetDocContent serves one document. Return ErrNotFound (possibly
	// wrapped) for absent documents.
	GetDocContent(ctx context.Context, req Request, resp Response) error

	// IsUserAuthorized answers, for each document, whether the identity may
	// read it. Unknown documents may be omitted from the result; the
	// framework treats omissions as indeterminate. The result must not be
	// nil.
	IsUserAuthorized(ctx context.Context, identity Identity, ids []docid.DocId) (map[docid.DocId]acl.Status, error)

	// Destroy releases resources during shutdown.
	Destroy() error
}
