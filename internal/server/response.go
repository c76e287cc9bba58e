// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package server

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/searchbridge/adaptor/internal/acl"
	"github.com/searchbridge/adaptor/internal/journal"
	"github.com/searchbridge/adaptor/internal/metrics"
)

// metadataHeader transports document metadata to the indexer, as
// percent-encoded name=value pairs.
const metadataHeader = "X-Gsa-External-Metadata"

var gzipPool = sync.Pool{
	New: func() any { return gzip.NewWriter(io.Discard) },
}

// errAlreadyResponded guards the exactly-one-of contract on Response.
var errAlreadyResponded = errors.New("server: response already committed")

// docResponse adapts an http.ResponseWriter to the adaptor Response
// contract. Headers accumulate until the first OutputStream write commits
// them; after that point nothing about the response can change, which is
// what makes late adaptor errors safe to swallow into the log.
type docResponse struct {
	w     http.ResponseWriter
	head  bool
	gzip  bool
	trace *journal.Trace

	contentType  string
	lastModified time.Time
	metadata     []metaItem
	docACL       *acl.ACL

	committed   bool
	notModified bool
	body        io.Writer
	gz          *gzip.Writer
	written     int64
}

type metaItem struct{ name, value string }

func newDocResponse(w http.ResponseWriter, r *http.Request, trace *journal.Trace) *docResponse {
	return &docResponse{
		w:     w,
		head:  r.Method == http.MethodHead,
		gzip:  acceptsGzip(r),
		trace: trace,
	}
}

func acceptsGzip(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.SplitN(enc, ";", 2)[0]) == "gzip" {
			return true
		}
	}
	return false
}

// RespondNotModified implements adaptor.Response.
func (d *docResponse) RespondNotModified() error {
	if d.committed {
		return errAlreadyResponded
	}
	d.committed = true
	d.notModified = true
	d.trace.ProcessingDone()
	d.trace.ResponseStarted()
	d.w.WriteHeader(http.StatusNotModified)
	return nil
}

// OutputStream implements adaptor.Response. The first call emits headers;
// later calls return the same writer.
func (d *docResponse) OutputStream() (io.Writer, error) {
	if d.notModified {
		return nil, errAlreadyResponded
	}
	if d.committed {
		return d, nil
	}
	d.committed = true
	d.commitHeaders()
	return d, nil
}

func (d *docResponse) commitHeaders() {
	h := d.w.Header()
	if d.contentType != "" {
		h.Set("Content-Type", d.contentType)
	}
	if !d.lastModified.IsZero() {
		h.Set("Last-Modified", d.lastModified.UTC().Format(http.TimeFormat))
	}
	items := d.metadata
	if d.docACL != nil {
		items = append(items, aclMetadata(*d.docACL)...)
	}
	if len(items) > 0 {
		h.Set(metadataHeader, encodeMetadata(items))
	}

	d.body = d.w
	if d.head {
		// Headers are computed identically for HEAD, but no body moves.
		d.body = io.Discard
	}
	if d.gzip {
		h.Set("Content-Encoding", "gzip")
		if !d.head {
			gz := gzipPool.Get().(*gzip.Writer)
			gz.Reset(d.w)
			d.gz = gz
			d.body = gz
		}
	}
	d.trace.ProcessingDone()
	d.trace.ResponseStarted()
}

// Write counts and forwards document bytes.
func (d *docResponse) Write(p []byte) (int, error) {
	n, err := d.body.Write(p)
	d.written += int64(n)
	d.trace.AddBytes(0, int64(n))
	return n, err
}

// SetContentType implements adaptor.Response. No effect once committed.
func (d *docResponse) SetContentType(contentType string) {
	if !d.committed {
		d.contentType = contentType
	}
}

// SetLastModified implements adaptor.Response. No effect once committed.
func (d *docResponse) SetLastModified(t time.Time) {
	if !d.committed {
		d.lastModified = t
	}
}

// AddMetadata implements adaptor.Response. No effect once committed.
func (d *docResponse) AddMetadata(name, value string) {
	if !d.committed {
		d.metadata = append(d.metadata, metaItem{name, value})
	}
}

// SetACL implements adaptor.Response. No effect once committed.
func (d *docResponse) SetACL(a acl.ACL) {
	if !d.committed {
		d.docACL = &a
	}
}

// finish flushes the compressor and closes out the journal trace.
func (d *docResponse) finish() {
	if d.gz != nil {
		d.gz.Close()
		gzipPool.Put(d.gz)
		d.gz = nil
	}
	if d.written > 0 {
		metrics.DocBytesServed.Add(float64(d.written))
	}
	d.trace.Finish()
}

// encodeMetadata renders items as comma-joined percent-encoded name=value
// pairs, the form the indexer expects in the metadata header.
func encodeMetadata(items []metaItem) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = url.QueryEscape(it.name) + "=" + url.QueryEscape(it.value)
	}
	return strings.Join(parts, ",")
}

// aclMetadata flattens an ACL into the metadata namespace the indexer
// understands for early-binding security.
func aclMetadata(a acl.ACL) []metaItem {
	var items []metaItem
	add := func(name string, values []string) {
		for _, v := range values {
			items = append(items, metaItem{name, v})
		}
	}
	add("google:aclusers", a.PermitUsers())
	add("google:acldenyusers", a.DenyUsers())
	add("google:aclgroups", a.PermitGroups())
	add("google:acldenygroups", a.DenyGroups())
	if from := a.InheritFrom(); from != "" {
		items = append(items, metaItem{"google:aclinheritfrom", string(from)})
	}
	items = append(items, metaItem{"google:aclinheritancetype", a.InheritanceType().String()})
	return items
}
