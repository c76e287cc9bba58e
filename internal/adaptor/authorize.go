// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package adaptor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/acl"
	"github.com/searchbridge/adaptor/internal/docid"
)

// Authorizer is the framework's single entry point for late-binding
// authorization. Adaptors that can hand out raw ACLs (by implementing
// acl.Retriever) get the inheritance chain resolved for them; the rest
// answer through their own IsUserAuthorized.
type Authorizer struct {
	inner    Adaptor
	resolver *acl.Resolver
}

// NewAuthorizer builds the authorization front for a.
func NewAuthorizer(a Adaptor, logger *zerolog.Logger) *Authorizer {
	az := &Authorizer{inner: a}
	if r, ok := a.(acl.Retriever); ok {
		az.resolver = acl.NewResolver(r, logger)
	}
	return az
}

// Authorize decides access to every requested document for the identity.
// Documents absent from the result are indeterminate to the caller.
func (az *Authorizer) Authorize(ctx context.Context, identity Identity, ids []docid.DocId) (map[docid.DocId]acl.Status, error) {
	if az.resolver != nil {
		return az.resolver.Resolve(ctx, identity.User, identity.Groups, ids)
	}
	return az.inner.IsUserAuthorized(ctx, identity, ids)
}
