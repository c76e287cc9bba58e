// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package adaptor

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/acl"
	"github.com/searchbridge/adaptor/internal/config"
	"github.com/searchbridge/adaptor/internal/docid"
)

// directRepo answers authorization itself, without exposing ACLs.
type directRepo struct {
	direct int
}

func (r *directRepo) InitConfig(cfg *config.Config)               {}
func (r *directRepo) Init(ctx context.Context, actx Context) error { return nil }
func (r *directRepo) GetDocIDs(ctx context.Context, p Pusher) error {
	return nil
}
func (r *directRepo) GetDocContent(ctx context.Context, req Request, resp Response) error {
	return ErrNotFound
}
func (r *directRepo) Destroy() error { return nil }

func (r *directRepo) IsUserAuthorized(ctx context.Context, id Identity, ids []docid.DocId) (map[docid.DocId]acl.Status, error) {
	r.direct++
	out := make(map[docid.DocId]acl.Status, len(ids))
	for _, d := range ids {
		out[d] = acl.Permit
	}
	return out, nil
}

// aclRepo additionally hands out raw ACLs for chain resolution.
type aclRepo struct {
	directRepo
	acls map[docid.DocId]acl.ACL
}

func (r *aclRepo) RetrieveACLs(ctx context.Context, ids []docid.DocId) (map[docid.DocId]acl.ACL, error) {
	out := make(map[docid.DocId]acl.ACL, len(ids))
	for _, d := range ids {
		if a, ok := r.acls[d]; ok {
			out[d] = a
		}
	}
	return out, nil
}

func TestAuthorizerResolvesAclChains(t *testing.T) {
	child := acl.NewBuilder().
		PermitUsers("alice").
		InheritFrom("dir").
		MustBuild()
	parent := acl.NewBuilder().
		DenyUsers("alice").
		InheritanceType(acl.ParentOverrides).
		MustBuild()
	repo := &aclRepo{acls: map[docid.DocId]acl.ACL{"doc": child, "dir": parent}}
	logger := zerolog.Nop()
	az := NewAuthorizer(repo, &logger)

	got, err := az.Authorize(context.Background(), Identity{User: "alice"}, []docid.DocId{"doc"})
	if err != nil {
		t.Fatal(err)
	}
	if got["doc"] != acl.Deny {
		t.Errorf("decision = %v, want the parent acl's deny", got["doc"])
	}
	if repo.direct != 0 {
		t.Errorf("adaptor answered directly %d times, want chain resolution", repo.direct)
	}
}

func TestAuthorizerFallsBackWithoutAclRetrieval(t *testing.T) {
	repo := &directRepo{}
	logger := zerolog.Nop()
	az := NewAuthorizer(repo, &logger)

	got, err := az.Authorize(context.Background(), Identity{User: "alice"}, []docid.DocId{"doc"})
	if err != nil {
		t.Fatal(err)
	}
	if got["doc"] != acl.Permit {
		t.Errorf("decision = %v, want the adaptor's own permit", got["doc"])
	}
	if repo.direct != 1 {
		t.Errorf("adaptor answered directly %d times, want once", repo.direct)
	}
}
