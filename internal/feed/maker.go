// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package feed builds, submits and retries the manifests that announce
// documents to the search appliance.
//
// The package splits the push pipeline into three stages: the Maker renders
// a batch of records into the appliance's XML manifest format, the Sender
// performs the multipart POST to the feed port, and the Pusher owns
// batching, per-batch retry and the single-flight full push.
package feed

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/searchbridge/adaptor/internal/adaptor"
	"github.com/searchbridge/adaptor/internal/docid"
)

// FeedType announced in manifests. The adaptor always feeds identifiers and
// lets the appliance crawl back for content.
const FeedType = "metadata-and-url"

// recordMimeType is a placeholder required by the manifest schema; the real
// type is served when the appliance crawls the document.
const recordMimeType = "text/plain"

// lastModifiedFormat is RFC 822 with a numeric zone, the form the
// appliance's feed parser accepts.
const lastModifiedFormat = "Mon, 02 Jan 2006 15:04:05 -0700"

// Maker renders record batches into feed manifests.
type Maker struct {
	codec      *docid.Codec
	datasource string
	charset    string

	// crawlImmediatelyEnabled and noRecrawlEnabled gate the corresponding
	// record hints; disabled hints are dropped from the manifest.
	crawlImmediatelyEnabled bool
	noRecrawlEnabled        bool
}

// NewMaker builds a Maker for the named datasource.
func NewMaker(codec *docid.Codec, datasource, charset string, crawlImmediatelyEnabled, noRecrawlEnabled bool) *Maker {
	if charset == "" {
		charset = "UTF-8"
	}
	return &Maker{
		codec:                   codec,
		datasource:              datasource,
		charset:                 charset,
		crawlImmediatelyEnabled: crawlImmediatelyEnabled,
		noRecrawlEnabled:        noRecrawlEnabled,
	}
}

// Datasource returns the feed name announced in manifests.
func (m *Maker) Datasource() string { return m.datasource }

// Make renders one batch into manifest XML.
func (m *Maker) Make(records []adaptor.Record) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", fmt.Sprintf(`version="1.0" encoding=%q`, m.charset))
	doc.CreateDirective(`DOCTYPE gsafeed PUBLIC "-//Google//DTD GSA Feeds//EN" ""`)

	root := doc.CreateElement("gsafeed")
	header := root.CreateElement("header")
	header.CreateElement("datasource").SetText(m.datasource)
	header.CreateElement("feedtype").SetText(FeedType)

	group := root.CreateElement("group")
	for _, r := range records {
		if err := m.addRecord(group, r); err != nil {
			return "", err
		}
	}

	doc.Indent(2)
	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("feed: serializing manifest: %w", err)
	}
	return out, nil
}

func (m *Maker) addRecord(group *etree.Element, r adaptor.Record) error {
	u, err := m.codec.Encode(r.DocID())
	if err != nil {
		return fmt.Errorf("feed: encoding %q: %w", r.DocID(), err)
	}

	rec := group.CreateElement("record")
	rec.CreateAttr("url", u.String())
	rec.CreateAttr("mimetype", recordMimeType)
	if r.IsDelete() {
		rec.CreateAttr("action", "delete")
		// Deletions carry no metadata; the parser skips straight to the
		// next record.
		return nil
	}
	rec.CreateAttr("action", "add")

	if link := r.ResultLink(); link != nil {
		rec.CreateAttr("displayurl", link.String())
	}
	if t := r.LastModified(); !t.IsZero() {
		rec.CreateAttr("last-modified", t.Format(lastModifiedFormat))
	}
	if m.crawlImmediatelyEnabled && r.IsCrawlImmediately() {
		rec.CreateAttr("crawl-immediately", "true")
	}
	if m.noRecrawlEnabled && r.IsCrawlOnce() {
		rec.CreateAttr("crawl-once", "true")
	}
	if r.IsLock() {
		rec.CreateAttr("lock", "true")
	}

	// The feed parser rejects an empty metadata block, so an add-record
	// without metadata gets a synthetic public marker.
	meta := rec.CreateElement("metadata")
	item := meta.CreateElement("meta")
	item.CreateAttr("name", "ispublic")
	item.CreateAttr("content", "true")
	return nil
}
