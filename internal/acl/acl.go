// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package acl models per-document access control lists and evaluates
// authorization decisions across inheritance chains.
//
// An ACL names the users and groups that are permitted or denied access to
// one document, plus an optional parent document to inherit from. Chains are
// evaluated root-first; how a parent combines with its child is governed by
// the parent's InheritanceType. Deny always trumps permit within a single
// ACL, and an overall decision that remains indeterminate is treated as
// deny by the serving layer (no permit by default).
package acl

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/searchbridge/adaptor/internal/docid"
)

// Status is the outcome of an authorization decision.
type Status int

const (
	// Indeterminate means the ACLs neither permit nor deny the user.
	Indeterminate Status = iota
	// Permit grants access.
	Permit
	// Deny refuses access.
	Deny
)

func (s Status) String() string {
	switch s {
	case Permit:
		return "PERMIT"
	case Deny:
		return "DENY"
	default:
		return "INDETERMINATE"
	}
}

// InheritanceType describes how an ACL, acting as a parent, combines its own
// decision with the decision of its child.
type InheritanceType int

const (
	// ChildOverrides uses the child's decision unless it is indeterminate.
	ChildOverrides InheritanceType = iota
	// ParentOverrides uses the parent's decision unless it is indeterminate.
	ParentOverrides
	// AndBothPermit permits only when both parent and child permit.
	AndBothPermit
	// LeafNode marks an ACL that must not be inherited from. A LeafNode
	// acting as a parent is a configuration error and denies.
	LeafNode
)

func (t InheritanceType) String() string {
	switch t {
	case ChildOverrides:
		return "child-overrides"
	case ParentOverrides:
		return "parent-overrides"
	case AndBothPermit:
		return "and-both-permit"
	default:
		return "leaf-node"
	}
}

// combine folds a parent and child decision. Both sides are thunks so that a
// combinator that only needs one of them never computes the other.
func (t InheritanceType) combine(child, parent func() Status) Status {
	switch t {
	case ChildOverrides:
		if c := child(); c != Indeterminate {
			return c
		}
		return parent()
	case ParentOverrides:
		if p := parent(); p != Indeterminate {
			return p
		}
		return child()
	case AndBothPermit:
		if parent() != Permit {
			return Deny
		}
		if child() != Permit {
			return Deny
		}
		return Permit
	default:
		// A leaf acting as a parent is a broken inheritance chain.
		return Deny
	}
}

// ACL is an immutable access control tuple for one document.
// Construct with a Builder; the zero value is the empty leaf ACL.
type ACL struct {
	permitUsers  []string
	denyUsers    []string
	permitGroups []string
	denyGroups   []string
	inheritFrom  docid.DocId
	inheritType  InheritanceType
}

// Empty is the ACL carrying no principals and no inheritance. Missing
// parents resolve to Empty during batch resolution.
var Empty = ACL{inheritType: LeafNode}

// Builder accumulates ACL fields and validates principals on Build.
type Builder struct {
	acl ACL
	err error
}

// NewBuilder returns a Builder for an ACL with LeafNode inheritance.
func NewBuilder() *Builder {
	return &Builder{acl: ACL{inheritType: LeafNode}}
}

func (b *Builder) setPrincipals(dst *[]string, names []string, field string) *Builder {
	if b.err != nil {
		return b
	}
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			b.err = fmt.Errorf("acl: empty %s entry", field)
			return b
		}
		if strings.TrimSpace(n) != n {
			b.err = fmt.Errorf("acl: %s entry %q has surrounding whitespace", field, n)
			return b
		}
		cleaned = append(cleaned, n)
	}
	slices.Sort(cleaned)
	*dst = slices.Compact(cleaned)
	return b
}

// PermitUsers sets the permitted user principals.
func (b *Builder) PermitUsers(names ...string) *Builder {
	return b.setPrincipals(&b.acl.permitUsers, names, "permit user")
}

// DenyUsers sets the denied user principals.
func (b *Builder) DenyUsers(names ...string) *Builder {
	return b.setPrincipals(&b.acl.denyUsers, names, "deny user")
}

// PermitGroups sets the permitted group principals.
func (b *Builder) PermitGroups(names ...string) *Builder {
	return b.setPrincipals(&b.acl.permitGroups, names, "permit group")
}

// DenyGroups sets the denied group principals.
func (b *Builder) DenyGroups(names ...string) *Builder {
	return b.setPrincipals(&b.acl.denyGroups, names, "deny group")
}

// InheritFrom names the parent document and the combination rule the parent
// applies. The type describes how THIS acl combines with its child, so it is
// set independently via InheritanceType.
func (b *Builder) InheritFrom(parent docid.DocId) *Builder {
	b.acl.inheritFrom = parent
	return b
}

// InheritanceType sets how this ACL combines with its child.
func (b *Builder) InheritanceType(t InheritanceType) *Builder {
	b.acl.inheritType = t
	return b
}

// Build validates and returns the immutable ACL.
func (b *Builder) Build() (ACL, error) {
	if b.err != nil {
		return ACL{}, b.err
	}
	return b.acl, nil
}

// MustBuild is Build for statically known inputs; it panics on invalid
// principals.
func (b *Builder) MustBuild() ACL {
	a, err := b.Build()
	if err != nil {
		panic(err)
	}
	return a
}

// InheritFrom returns the parent document, or "" when the ACL stands alone.
func (a ACL) InheritFrom() docid.DocId { return a.inheritFrom }

// InheritanceType returns the parent-side combination rule.
func (a ACL) InheritanceType() InheritanceType { return a.inheritType }

// PermitUsers returns a copy of the permitted users.
func (a ACL) PermitUsers() []string { return slices.Clone(a.permitUsers) }

// DenyUsers returns a copy of the denied users.
func (a ACL) DenyUsers() []string { return slices.Clone(a.denyUsers) }

// PermitGroups returns a copy of the permitted groups.
func (a ACL) PermitGroups() []string { return slices.Clone(a.permitGroups) }

// DenyGroups returns a copy of the denied groups.
func (a ACL) DenyGroups() []string { return slices.Clone(a.denyGroups) }

// IsEmpty reports whether the ACL names no principals at all.
func (a ACL) IsEmpty() bool {
	return len(a.permitUsers) == 0 && len(a.denyUsers) == 0 &&
		len(a.permitGroups) == 0 && len(a.denyGroups) == 0
}

// Equal reports structural equality. Principal slices are kept sorted and
// deduplicated by the Builder, so element-wise comparison suffices.
func (a ACL) Equal(o ACL) bool {
	return slices.Equal(a.permitUsers, o.permitUsers) &&
		slices.Equal(a.denyUsers, o.denyUsers) &&
		slices.Equal(a.permitGroups, o.permitGroups) &&
		slices.Equal(a.denyGroups, o.denyGroups) &&
		a.inheritFrom == o.inheritFrom &&
		a.inheritType == o.inheritType
}

func (a ACL) String() string {
	return fmt.Sprintf("acl{permitUsers=%v denyUsers=%v permitGroups=%v denyGroups=%v inheritFrom=%q type=%s}",
		a.permitUsers, a.denyUsers, a.permitGroups, a.denyGroups, a.inheritFrom, a.inheritType)
}

// IsAuthorizedLocal evaluates this ACL in isolation. Deny trumps permit;
// a user matching neither side is indeterminate.
func (a ACL) IsAuthorizedLocal(user string, groups []string) Status {
	if contains(a.denyUsers, user) || intersects(a.denyGroups, groups) {
		return Deny
	}
	if contains(a.permitUsers, user) || intersects(a.permitGroups, groups) {
		return Permit
	}
	return Indeterminate
}

// IsAuthorized evaluates a full inheritance chain, root at index 0 and the
// target document last. When every ACL in the chain is empty the result is
// Indeterminate; otherwise an indeterminate outcome collapses to Deny.
func IsAuthorized(user string, groups []string, chain []ACL) (Status, error) {
	if len(chain) == 0 {
		return Indeterminate, errors.New("acl: empty chain")
	}
	allEmpty := true
	for _, a := range chain {
		if !a.IsEmpty() {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return Indeterminate, nil
	}
	if d := chainDecision(user, groups, chain); d == Permit {
		return Permit, nil
	}
	return Deny, nil
}

// chainDecision computes the non-local decision of chain[0]. The leaf's
// non-local decision equals its local decision; every other position
// combines its local decision (as parent) with the decision of its child.
func chainDecision(user string, groups []string, chain []ACL) Status {
	head := chain[0]
	parent := func() Status { return head.IsAuthorizedLocal(user, groups) }
	if len(chain) == 1 {
		return parent()
	}
	child := func() Status { return chainDecision(user, groups, chain[1:]) }
	return head.inheritType.combine(child, parent)
}

func contains(sorted []string, v string) bool {
	_, ok := slices.BinarySearch(sorted, v)
	return ok
}

func intersects(sorted []string, vs []string) bool {
	for _, v := range vs {
		if contains(sorted, v) {
			return true
		}
	}
	return false
}
