// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package acl

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/docid"
)

// Retriever supplies ACLs for a batch of documents. Documents without an
// ACL are simply absent from the returned map; the resolver treats absent
// parents as the empty leaf ACL.
type Retriever interface {
	RetrieveACLs(ctx context.Context, ids []docid.DocId) (map[docid.DocId]ACL, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, ids []docid.DocId) (map[docid.DocId]ACL, error)

// RetrieveACLs implements Retriever.
func (f RetrieverFunc) RetrieveACLs(ctx context.Context, ids []docid.DocId) (map[docid.DocId]ACL, error) {
	return f(ctx, ids)
}

// Resolver walks inheritance chains for batches of documents and evaluates
// the final authorization status per document. It is stateless between
// calls; every resolution owns its private working set.
type Resolver struct {
	retriever Retriever
	logger    zerolog.Logger
}

// NewResolver builds a Resolver around the given retriever.
func NewResolver(r Retriever, logger *zerolog.Logger) *Resolver {
	return &Resolver{
		retriever: r,
		logger:    logger.With().Str("component", "acl-resolver").Logger(),
	}
}

// Resolve answers the authorization question for every requested document.
// It issues as few retrievals as possible: the initial batch, then one
// further batch per inheritance level, never asking twice for the same id.
// A cycle in the inheritance graph yields Indeterminate for the documents
// whose chains touch it; unrelated documents are unaffected.
func (r *Resolver) Resolve(ctx context.Context, user string, groups []string, ids []docid.DocId) (map[docid.DocId]Status, error) {
	known := make(map[docid.DocId]ACL)
	asked := make(map[docid.DocId]bool)

	frontier := dedupe(ids)
	for len(frontier) > 0 {
		for _, id := range frontier {
			asked[id] = true
		}
		batch, err := r.retriever.RetrieveACLs(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("acl: retrieving %d acls: %w", len(frontier), err)
		}
		var next []docid.DocId
		for id, a := range batch {
			known[id] = a
			if parent := a.InheritFrom(); parent != "" && !asked[parent] {
				asked[parent] = true
				next = append(next, parent)
			}
		}
		frontier = next
	}

	results := make(map[docid.DocId]Status, len(ids))
	for _, id := range dedupe(ids) {
		results[id] = r.evaluate(user, groups, id, known)
	}
	return results, nil
}

// evaluate follows the inheritance links for one document through the
// already-retrieved ACL set and applies the chain algebra. Visited ACLs are
// tracked by structural equality, not by docid, because two revisions of
// the same document's ACL do not form a cycle.
func (r *Resolver) evaluate(user string, groups []string, id docid.DocId, known map[docid.DocId]ACL) Status {
	cur, ok := known[id]
	if !ok {
		cur = Empty
	}
	// Walk leaf to root, then reverse for evaluation.
	chain := []ACL{cur}
	for cur.InheritFrom() != "" {
		parent, ok := known[cur.InheritFrom()]
		if !ok {
			parent = Empty
		}
		for _, seen := range chain {
			if seen.Equal(parent) {
				r.logger.Warn().
					Str("docid", string(id)).
					Str("parent", string(cur.InheritFrom())).
					Msg("cycle detected in acl inheritance chain")
				return Indeterminate
			}
		}
		chain = append(chain, parent)
		cur = parent
	}
	slices.Reverse(chain)

	status, err := IsAuthorized(user, groups, chain)
	if err != nil {
		r.logger.Error().Err(err).Str("docid", string(id)).Msg("acl chain evaluation failed")
		return Indeterminate
	}
	return status
}

func dedupe(ids []docid.DocId) []docid.DocId {
	seen := make(map[docid.DocId]bool, len(ids))
	out := make([]docid.DocId, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
