// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package adaptor

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/searchbridge/adaptor/internal/docid"
)

// Record is one entry in a feed manifest: a document identifier plus the
// attributes the appliance acts on. Records are immutable once built and
// compare structurally.
type Record struct {
	id               docid.DocId
	deleteFromIndex  bool
	lastModified     time.Time
	resultLink       *url.URL
	crawlImmediately bool
	crawlOnce        bool
	lock             bool
}

// NewRecord returns a plain add-record for the given document.
func NewRecord(id docid.DocId) (Record, error) {
	if id == "" {
		return Record{}, errors.New("adaptor: record requires a docid")
	}
	return Record{id: id}, nil
}

// NewDeleteRecord returns a record instructing the appliance to drop the
// document from its index.
func NewDeleteRecord(id docid.DocId) (Record, error) {
	r, err := NewRecord(id)
	if err != nil {
		return Record{}, err
	}
	r.deleteFromIndex = true
	return r, nil
}

// RecordBuilder assembles a Record. The zero value is unusable; start from
// NewRecordBuilder or FromRecord.
type RecordBuilder struct {
	r Record
}

// NewRecordBuilder starts a builder for the given document.
func NewRecordBuilder(id docid.DocId) *RecordBuilder {
	return &RecordBuilder{r: Record{id: id}}
}

// FromRecord starts a builder seeded with an existing record's attributes.
func FromRecord(r Record) *RecordBuilder {
	return &RecordBuilder{r: r}
}

// Delete marks the record as a deletion.
func (b *RecordBuilder) Delete(v bool) *RecordBuilder {
	b.r.deleteFromIndex = v
	return b
}

// LastModified sets the repository modification time.
func (b *RecordBuilder) LastModified(t time.Time) *RecordBuilder {
	b.r.lastModified = t
	return b
}

// ResultLink overrides the URL shown to users in search results.
func (b *RecordBuilder) ResultLink(u *url.URL) *RecordBuilder {
	b.r.resultLink = u
	return b
}

// CrawlImmediately asks the appliance to fetch the document ahead of its
// normal crawl budget.
func (b *RecordBuilder) CrawlImmediately(v bool) *RecordBuilder {
	b.r.crawlImmediately = v
	return b
}

// CrawlOnce asks the appliance not to recrawl the document after the first
// fetch.
func (b *RecordBuilder) CrawlOnce(v bool) *RecordBuilder {
	b.r.crawlOnce = v
	return b
}

// Lock protects the document from eviction when the appliance license limit
// is reached.
func (b *RecordBuilder) Lock(v bool) *RecordBuilder {
	b.r.lock = v
	return b
}

// Build validates and returns the record.
func (b *RecordBuilder) Build() (Record, error) {
	if b.r.id == "" {
		return Record{}, errors.New("adaptor: record requires a docid")
	}
	return b.r, nil
}

// MustBuild is Build for statically known inputs.
func (b *RecordBuilder) MustBuild() Record {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

// DocID returns the document identifier.
func (r Record) DocID() docid.DocId { return r.id }

// IsDelete reports whether this record removes the document from the index.
func (r Record) IsDelete() bool { return r.deleteFromIndex }

// LastModified returns the modification time, zero when unset.
func (r Record) LastModified() time.Time { return r.lastModified }

// ResultLink returns the result link override, nil when unset.
func (r Record) ResultLink() *url.URL { return r.resultLink }

// IsCrawlImmediately reports the crawl-immediately hint.
func (r Record) IsCrawlImmediately() bool { return r.crawlImmediately }

// IsCrawlOnce reports the crawl-once hint.
func (r Record) IsCrawlOnce() bool { return r.crawlOnce }

// IsLock reports the lock hint.
func (r Record) IsLock() bool { return r.lock }

// Equal reports structural equality.
func (r Record) Equal(o Record) bool {
	if r.id != o.id ||
		r.deleteFromIndex != o.deleteFromIndex ||
		!r.lastModified.Equal(o.lastModified) ||
		r.crawlImmediately != o.crawlImmediately ||
		r.crawlOnce != o.crawlOnce ||
		r.lock != o.lock {
		return false
	}
	switch {
	case r.resultLink == nil && o.resultLink == nil:
		return true
	case r.resultLink == nil || o.resultLink == nil:
		return false
	default:
		return r.resultLink.String() == o.resultLink.String()
	}
}

func (r Record) String() string {
	action := "add"
	if r.deleteFromIndex {
		action = "delete"
	}
	return fmt.Sprintf("record{id=%q action=%s}", r.id, action)
}
