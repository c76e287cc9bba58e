// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package unzip decorates an adaptor so zip archives in the repository
// appear as trees of individually indexable documents.
//
// A member of outer.zip gets the virtual docid "outer.zip!member"; nested
// archives stack further components. Listings expand archives into child
// records, retrieval digs the chain back out, and authorization questions
// collapse to the outer document, whose access control governs the whole
// archive.
package unzip

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/acl"
	"github.com/searchbridge/adaptor/internal/adaptor"
	"github.com/searchbridge/adaptor/internal/config"
	"github.com/searchbridge/adaptor/internal/docid"
)

const zipSuffix = ".zip"

// Adaptor wraps another adaptor with archive expansion.
type Adaptor struct {
	wrapped adaptor.Adaptor
	logger  zerolog.Logger
}

// Wrap decorates wrapped with auto-unzip behavior. A wrapped adaptor that
// reports recently changed documents keeps doing so through the wrapper,
// with the same archive expansion as full listings.
func Wrap(wrapped adaptor.Adaptor, logger *zerolog.Logger) adaptor.Adaptor {
	z := &Adaptor{
		wrapped: wrapped,
		logger:  logger.With().Str("component", "unzip").Logger(),
	}
	if il, ok := wrapped.(adaptor.IncrementalLister); ok {
		return &incrementalAdaptor{Adaptor: z, incremental: il}
	}
	return z
}

// incrementalAdaptor augments the wrapper for repositories with
// incremental listings. Kept as a separate type so wrapping never
// advertises an ability the underlying adaptor lacks.
type incrementalAdaptor struct {
	*Adaptor
	incremental adaptor.IncrementalLister
}

// GetModifiedDocIDs forwards the incremental listing, expanding archive
// records on the way through.
func (a *incrementalAdaptor) GetModifiedDocIDs(ctx context.Context, pusher adaptor.Pusher) error {
	return a.incremental.GetModifiedDocIDs(ctx, &expandingPusher{z: a.Adaptor, next: pusher})
}

// InitConfig delegates to the wrapped adaptor.
func (z *Adaptor) InitConfig(cfg *config.Config) { z.wrapped.InitConfig(cfg) }

// Init delegates to the wrapped adaptor.
func (z *Adaptor) Init(ctx context.Context, actx adaptor.Context) error {
	return z.wrapped.Init(ctx, actx)
}

// Destroy delegates to the wrapped adaptor.
func (z *Adaptor) Destroy() error { return z.wrapped.Destroy() }

// GetDocIDs lists the wrapped repository, expanding every archive record
// into child records. Deletions pass through unexpanded; the indexer
// discovers member absence through 404s.
func (z *Adaptor) GetDocIDs(ctx context.Context, pusher adaptor.Pusher) error {
	return z.wrapped.GetDocIDs(ctx, &expandingPusher{z: z, next: pusher})
}

type expandingPusher struct {
	z    *Adaptor
	next adaptor.Pusher
}

func (p *expandingPusher) PushRecords(ctx context.Context, records iter.Seq[adaptor.Record], handler adaptor.PushErrorHandler) (*adaptor.Record, error) {
	expanded := func(yield func(adaptor.Record) bool) {
		for r := range records {
			if !yield(r) {
				return
			}
			if r.IsDelete() || !strings.HasSuffix(strings.ToLower(string(r.DocID())), zipSuffix) {
				continue
			}
			children, err := p.z.listArchive(ctx, r)
			if err != nil {
				// An unreadable archive still gets indexed as a plain
				// document; only its members are skipped.
				p.z.logger.Warn().Err(err).Str("docid", string(r.DocID())).Msg("skipping archive expansion")
				continue
			}
			for _, c := range children {
				if !yield(c) {
					return
				}
			}
		}
	}
	return p.next.PushRecords(ctx, expanded, handler)
}

// listArchive fetches one archive and returns records for its members,
// recursing into nested archives.
func (z *Adaptor) listArchive(ctx context.Context, outer adaptor.Record) ([]adaptor.Record, error) {
	tmp, err := z.fetchToTemp(ctx, outer.DocID())
	if err != nil {
		return nil, err
	}
	defer closeAndRemove(tmp)

	prefix := escape(string(outer.DocID()))
	var out []adaptor.Record
	err = z.walkZip(tmp.Name(), prefix, 0, func(childID string) error {
		rec, err := adaptor.NewRecordBuilder(docid.DocId(childID)).
			LastModified(outer.LastModified()).
			Build()
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// maxNesting caps recursion into archives-within-archives.
const maxNesting = 10

func (z *Adaptor) walkZip(path, prefix string, depth int, emit func(childID string) error) error {
	if depth >= maxNesting {
		return fmt.Errorf("unzip: nesting deeper than %d levels", maxNesting)
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("unzip: opening archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		childID := prefix + Delimiter + escape(f.Name)
		if err := emit(childID); err != nil {
			return err
		}
		if !strings.HasSuffix(strings.ToLower(f.Name), zipSuffix) {
			continue
		}
		nested, err := extractToTemp(f)
		if err != nil {
			z.logger.Warn().Err(err).Str("entry", f.Name).Msg("skipping nested archive")
			continue
		}
		err = z.walkZip(nested.Name(), childID, depth+1, emit)
		closeAndRemove(nested)
		if err != nil {
			z.logger.Warn().Err(err).Str("entry", f.Name).Msg("skipping nested archive")
		}
	}
	return nil
}

// GetDocContent serves plain docids straight from the wrapped adaptor and
// digs archive members out of their (possibly nested) archives.
func (z *Adaptor) GetDocContent(ctx context.Context, req adaptor.Request, resp adaptor.Response) error {
	outer, rest, nested := split(string(req.DocID))
	if !nested {
		return z.wrapped.GetDocContent(ctx, req, resp)
	}

	tmp, err := z.fetchToTemp(ctx, docid.DocId(outer))
	if err != nil {
		return err
	}
	defer closeAndRemove(tmp)

	path := tmp.Name()
	var nestedTemps []*os.File
	defer func() {
		for _, f := range nestedTemps {
			closeAndRemove(f)
		}
	}()

	for {
		entry, deeper, more := split(rest)
		if !more {
			return streamEntry(path, entry, resp)
		}
		inner, err := extractEntry(path, entry)
		if err != nil {
			return err
		}
		nestedTemps = append(nestedTemps, inner)
		path = inner.Name()
		rest = deeper
	}
}

// IsUserAuthorized collapses virtual docids to their outer document and
// asks the wrapped adaptor about those, fanning the answers back out.
func (z *Adaptor) IsUserAuthorized(ctx context.Context, identity adaptor.Identity, ids []docid.DocId) (map[docid.DocId]acl.Status, error) {
	outerOf := make(map[docid.DocId]docid.DocId, len(ids))
	seen := make(map[docid.DocId]struct{}, len(ids))
	outers := make([]docid.DocId, 0, len(ids))
	for _, id := range ids {
		outer, _, _ := split(string(id))
		o := docid.DocId(outer)
		outerOf[id] = o
		if _, dup := seen[o]; !dup {
			seen[o] = struct{}{}
			outers = append(outers, o)
		}
	}

	answers, err := z.wrapped.IsUserAuthorized(ctx, identity, outers)
	if err != nil {
		return nil, err
	}
	out := make(map[docid.DocId]acl.Status, len(ids))
	for _, id := range ids {
		if status, ok := answers[outerOf[id]]; ok {
			out[id] = status
		}
	}
	return out, nil
}

// fetchToTemp retrieves one document from the wrapped adaptor into a
// temp file.
func (z *Adaptor) fetchToTemp(ctx context.Context, id docid.DocId) (*os.File, error) {
	tmp, err := os.CreateTemp("", "adaptor-unzip-*")
	if err != nil {
		return nil, err
	}
	sink := &fileResponse{file: tmp}
	if err := z.wrapped.GetDocContent(ctx, adaptor.Request{DocID: id}, sink); err != nil {
		closeAndRemove(tmp)
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		closeAndRemove(tmp)
		return nil, err
	}
	return tmp, nil
}

// streamEntry copies one archive member to the response.
func streamEntry(zipPath, name string, resp adaptor.Response) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("unzip: opening archive: %w", err)
	}
	defer zr.Close()

	f := findEntry(zr, name)
	if f == nil {
		return fmt.Errorf("%q: %w", name, adaptor.ErrNotFound)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if mod := f.Modified; !mod.IsZero() {
		resp.SetLastModified(mod)
	}
	w, err := resp.OutputStream()
	if err != nil {
		return err
	}
	_, err = io.Copy(w, rc)
	return err
}

// extractEntry copies one archive member into a temp file.
func extractEntry(zipPath, name string) (*os.File, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("unzip: opening archive: %w", err)
	}
	defer zr.Close()

	f := findEntry(zr, name)
	if f == nil {
		return nil, fmt.Errorf("%q: %w", name, adaptor.ErrNotFound)
	}
	return extractToTemp(f)
}

func findEntry(zr *zip.ReadCloser, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func extractToTemp(f *zip.File) (*os.File, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "adaptor-unzip-*")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		closeAndRemove(tmp)
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		closeAndRemove(tmp)
		return nil, err
	}
	return tmp, nil
}

func closeAndRemove(f *os.File) {
	f.Close()
	os.Remove(f.Name())
}

// fileResponse captures wrapped-adaptor content into a file, discarding
// headers.
type fileResponse struct {
	file *os.File
}

func (r *fileResponse) RespondNotModified() error {
	return fmt.Errorf("unzip: unexpected not-modified for unconditional fetch")
}

func (r *fileResponse) OutputStream() (io.Writer, error) { return r.file, nil }
func (r *fileResponse) SetContentType(string)            {}
func (r *fileResponse) SetLastModified(time.Time)        {}
func (r *fileResponse) AddMetadata(string, string)       {}
func (r *fileResponse) SetACL(acl.ACL)                   {}
