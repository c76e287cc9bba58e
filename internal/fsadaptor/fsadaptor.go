// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package fsadaptor is the built-in example adaptor. It indexes a
// directory tree; docids are slash-separated paths relative to the
// configured root.
package fsadaptor

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/acl"
	"github.com/searchbridge/adaptor/internal/adaptor"
	"github.com/searchbridge/adaptor/internal/config"
	"github.com/searchbridge/adaptor/internal/docid"
)

// srcKey is the adaptor-implementation config key naming the root
// directory.
const srcKey = "filesystem.src"

// Adaptor serves a directory tree.
type Adaptor struct {
	root   string
	logger zerolog.Logger
}

// New builds the filesystem adaptor. The root is read from config during
// Init.
func New(logger *zerolog.Logger) *Adaptor {
	return &Adaptor{logger: logger.With().Str("component", "fsadaptor").Logger()}
}

// InitConfig registers the root directory default.
func (a *Adaptor) InitConfig(cfg *config.Config) {
	cfg.SetDefaultValue(srcKey, ".")
}

// Init resolves and checks the configured root.
func (a *Adaptor) Init(ctx context.Context, actx adaptor.Context) error {
	src, _ := actx.Config().Value(srcKey)
	root, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("fsadaptor: resolving %s: %w", srcKey, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("fsadaptor: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("fsadaptor: %s is not a directory", root)
	}
	a.root = root
	a.logger.Info().Str("root", root).Msg("serving directory")
	return nil
}

// Destroy has nothing to release.
func (a *Adaptor) Destroy() error { return nil }

// GetDocIDs walks the tree, streaming one record per regular file.
func (a *Adaptor) GetDocIDs(ctx context.Context, pusher adaptor.Pusher) error {
	var walkErr error
	records := func(yield func(adaptor.Record) bool) {
		walkErr = filepath.WalkDir(a.root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(a.root, p)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			rec, err := adaptor.NewRecordBuilder(docid.DocId(filepath.ToSlash(rel))).
				LastModified(info.ModTime()).
				Build()
			if err != nil {
				return err
			}
			if !yield(rec) {
				return fs.SkipAll
			}
			return nil
		})
	}
	var seq iter.Seq[adaptor.Record] = records
	if _, err := pusher.PushRecords(ctx, seq, nil); err != nil {
		return err
	}
	return walkErr
}

// GetDocContent streams one file, honoring If-Modified-Since.
func (a *Adaptor) GetDocContent(ctx context.Context, req adaptor.Request, resp adaptor.Response) error {
	p, err := a.resolve(req.DocID)
	if err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", req.DocID, adaptor.ErrNotFound)
		}
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s: %w", req.DocID, adaptor.ErrNotFound)
	}

	if !req.HasChangedSinceLastAccess(info.ModTime()) {
		return resp.RespondNotModified()
	}

	if ct := mime.TypeByExtension(path.Ext(string(req.DocID))); ct != "" {
		resp.SetContentType(ct)
	}
	resp.SetLastModified(info.ModTime())

	w, err := resp.OutputStream()
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// IsUserAuthorized permits every document that exists; the filesystem
// example carries no per-user access control.
func (a *Adaptor) IsUserAuthorized(ctx context.Context, identity adaptor.Identity, ids []docid.DocId) (map[docid.DocId]acl.Status, error) {
	out := make(map[docid.DocId]acl.Status, len(ids))
	for _, id := range ids {
		p, err := a.resolve(id)
		if err != nil {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			out[id] = acl.Permit
		}
	}
	return out, nil
}

// resolve maps a docid to a path under the root, rejecting traversal.
func (a *Adaptor) resolve(id docid.DocId) (string, error) {
	rel := filepath.FromSlash(string(id))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%s: %w", id, adaptor.ErrNotFound)
	}
	return filepath.Join(a.root, rel), nil
}
