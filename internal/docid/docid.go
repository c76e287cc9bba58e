// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package docid defines document identifiers and the reversible mapping
// between identifiers and the URLs the appliance crawls.
//
// A DocId is an opaque string chosen by the repository adaptor. Identifiers
// are compared by string equality and are never normalized. Because the
// appliance and intermediate proxies may collapse dot segments in URL paths,
// the codec applies a reversible escape that keeps ids containing "/./" and
// "/../" intact across the round trip.
package docid

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DocId is an opaque, non-empty identifier assigned by the adaptor.
type DocId string

// ErrNotOurDocID is returned by Decode when a URL does not fall under the
// codec's document namespace.
var ErrNotOurDocID = errors.New("docid: url is not under the document namespace")

// Codec converts between document identifiers and served URLs.
//
// In passthrough mode (IsURL) the identifier already is a URL and is used
// verbatim. In namespaced mode the identifier is appended to
// BaseURI + DocIdPath after segment-wise percent-encoding and dot-run
// extension.
type Codec struct {
	// BaseURI is the externally visible server root, e.g.
	// "https://adaptor.example.com:5678". No trailing slash.
	BaseURI *url.URL

	// DocIdPath is the URL namespace for documents, e.g. "/doc/".
	// Always begins and ends with a slash.
	DocIdPath string

	// IsURL enables passthrough mode.
	IsURL bool
}

// NewCodec builds a codec for the given server base and namespace path.
func NewCodec(baseURI *url.URL, docIDPath string, isURL bool) (*Codec, error) {
	if baseURI == nil {
		return nil, errors.New("docid: base URI is required")
	}
	if !strings.HasPrefix(docIDPath, "/") || !strings.HasSuffix(docIDPath, "/") {
		return nil, fmt.Errorf("docid: docIdPath %q must begin and end with a slash", docIDPath)
	}
	return &Codec{BaseURI: baseURI, DocIdPath: docIDPath, IsURL: isURL}, nil
}

// Encode maps an identifier to the URL the appliance should crawl.
func (c *Codec) Encode(id DocId) (*url.URL, error) {
	if id == "" {
		return nil, errors.New("docid: empty identifier")
	}
	if c.IsURL {
		u, err := url.Parse(string(id))
		if err != nil {
			return nil, fmt.Errorf("docid: identifier is not a valid URL: %w", err)
		}
		return u, nil
	}
	// The escaped form goes through url.Parse so that RawPath is populated
	// and EscapedPath round-trips without re-encoding.
	raw := c.BaseURI.Scheme + "://" + c.BaseURI.Host + c.DocIdPath + escape(string(id))
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("docid: cannot form URL for %q: %w", id, err)
	}
	return u, nil
}

// Decode maps a served URL back to the identifier it was produced from.
// Returns ErrNotOurDocID when the URL lies outside the namespace.
func (c *Codec) Decode(u *url.URL) (DocId, error) {
	if u == nil {
		return "", errors.New("docid: nil URL")
	}
	if c.IsURL {
		return DocId(u.String()), nil
	}
	if u.Host != c.BaseURI.Host || u.Scheme != c.BaseURI.Scheme {
		return "", ErrNotOurDocID
	}
	escaped, ok := strings.CutPrefix(u.EscapedPath(), c.DocIdPath)
	if !ok {
		return "", ErrNotOurDocID
	}
	id, err := unescape(escaped)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", ErrNotOurDocID
	}
	return DocId(id), nil
}

// escape percent-encodes each path segment of a raw identifier and extends
// all-dot segments by two dots so that path-normalizing intermediaries
// cannot destroy them. Slashes inside the identifier stay real separators.
func escape(raw string) string {
	segs := strings.Split(raw, "/")
	for i, seg := range segs {
		if isAllDots(seg) {
			segs[i] = seg + ".."
			continue
		}
		segs[i] = url.PathEscape(seg)
	}
	return strings.Join(segs, "/")
}

// unescape reverses escape. Segment decoding failures surface as errors so
// malformed percent escapes are never silently accepted.
func unescape(escaped string) (string, error) {
	segs := strings.Split(escaped, "/")
	for i, seg := range segs {
		if isAllDots(seg) && len(seg) >= 3 {
			segs[i] = seg[:len(seg)-2]
			continue
		}
		dec, err := url.PathUnescape(seg)
		if err != nil {
			return "", fmt.Errorf("docid: malformed escape in %q: %w", seg, err)
		}
		segs[i] = dec
	}
	return strings.Join(segs, "/"), nil
}

func isAllDots(seg string) bool {
	if seg == "" {
		return false
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] != '.' {
			return false
		}
	}
	return true
}
