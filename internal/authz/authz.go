// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

// Package authz answers the appliance's late-binding authorization
// questions. At serve time the appliance POSTs a SOAP envelope holding a
// batch of SAML AuthzDecisionQuery elements, one per document in the
// result page; the response carries one SAML Response per query with a
// Permit, Deny or Indeterminate decision.
package authz

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/searchbridge/adaptor/internal/acl"
	"github.com/searchbridge/adaptor/internal/adaptor"
	"github.com/searchbridge/adaptor/internal/docid"
	"github.com/searchbridge/adaptor/internal/metrics"
)

// maxRequestBytes bounds the SOAP request body.
const maxRequestBytes = 4 << 20

const (
	soapNS  = "http://schemas.xmlsoap.org/soap/envelope/"
	samlNS  = "urn:oasis:names:tc:SAML:2.0:assertion"
	samlpNS = "urn:oasis:names:tc:SAML:2.0:protocol"
)

// query is one parsed AuthzDecisionQuery.
type query struct {
	id       string
	subject  string
	resource string

	// docID is set when resource decodes against this server's namespace.
	docID docid.DocId
	known bool
}

// Handler is the POST-only SOAP endpoint.
type Handler struct {
	codec      *docid.Codec
	authorizer *adaptor.Authorizer
	logger     zerolog.Logger
	now        func() time.Time
}

// NewHandler wires the responder to the adaptor's authorization answers,
// resolving ACL inheritance chains when the adaptor exposes raw ACLs.
func NewHandler(codec *docid.Codec, a adaptor.Adaptor, logger *zerolog.Logger) *Handler {
	return &Handler{
		codec:      codec,
		authorizer: adaptor.NewAuthorizer(a, logger),
		logger:     logger.With().Str("component", "authz").Logger(),
		now:        time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	queries, subject, err := h.parse(body)
	if err != nil {
		h.logger.Warn().Err(err).Msg("rejecting authorization request")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	decisions := h.decide(r, subject, queries)

	doc := h.respond(queries, decisions)
	out, err := doc.WriteToString()
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	io.WriteString(w, out)
}

// parse extracts the query batch and enforces the single-subject rule: a
// batch mixing subjects fails whole.
func (h *Handler) parse(body []byte) ([]query, string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, "", fmt.Errorf("authz: malformed envelope: %w", err)
	}

	var queries []query
	var subject string
	for _, el := range elementsByTag(doc.Root(), "AuthzDecisionQuery") {
		q := query{
			id:       el.SelectAttrValue("ID", ""),
			resource: el.SelectAttrValue("Resource", ""),
		}
		if nameID := firstByTag(el, "NameID"); nameID != nil {
			q.subject = nameID.Text()
		}
		if q.subject == "" {
			return nil, "", fmt.Errorf("authz: query %s has no subject", q.id)
		}
		if subject == "" {
			subject = q.subject
		} else if q.subject != subject {
			return nil, "", fmt.Errorf("authz: queries carry mixed subjects")
		}

		if u, err := url.Parse(q.resource); err == nil {
			if id, err := h.codec.Decode(u); err == nil {
				q.docID = id
				q.known = true
			}
		}
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		return nil, "", fmt.Errorf("authz: no queries in envelope")
	}
	return queries, subject, nil
}

// decide asks the adaptor once for the union of in-scope docids. Unknown
// resources and omissions from the reply stay Indeterminate.
func (h *Handler) decide(r *http.Request, subject string, queries []query) map[docid.DocId]acl.Status {
	seen := make(map[docid.DocId]struct{})
	var ids []docid.DocId
	for _, q := range queries {
		if !q.known {
			continue
		}
		if _, dup := seen[q.docID]; dup {
			continue
		}
		seen[q.docID] = struct{}{}
		ids = append(ids, q.docID)
	}
	if len(ids) == 0 {
		return nil
	}

	decisions, err := h.authorizer.Authorize(r.Context(), adaptor.Identity{User: subject}, ids)
	if err != nil {
		h.logger.Error().Err(err).Str("subject", subject).Msg("authorization lookup failed")
		return nil
	}
	return decisions
}

// respond builds the SOAP envelope: one samlp:Response per query, each
// wrapping an Assertion with an AuthzDecisionStatement.
func (h *Handler) respond(queries []query, decisions map[docid.DocId]acl.Status) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	env := doc.CreateElement("soapenv:Envelope")
	env.CreateAttr("xmlns:soapenv", soapNS)
	env.CreateAttr("xmlns:saml", samlNS)
	env.CreateAttr("xmlns:samlp", samlpNS)
	body := env.CreateElement("soapenv:Body")

	issueInstant := h.now().UTC().Format(time.RFC3339)
	for _, q := range queries {
		status := acl.Indeterminate
		if q.known {
			if s, ok := decisions[q.docID]; ok {
				status = s
			}
		}
		metrics.AuthzQueries.WithLabelValues(decisionString(status)).Inc()

		resp := body.CreateElement("samlp:Response")
		resp.CreateAttr("ID", "_"+uuid.NewString())
		resp.CreateAttr("Version", "2.0")
		resp.CreateAttr("IssueInstant", issueInstant)
		if q.id != "" {
			resp.CreateAttr("InResponseTo", q.id)
		}
		st := resp.CreateElement("samlp:Status")
		st.CreateElement("samlp:StatusCode").
			CreateAttr("Value", "urn:oasis:names:tc:SAML:2.0:status:Success")

		assertion := resp.CreateElement("saml:Assertion")
		assertion.CreateAttr("ID", "_"+uuid.NewString())
		assertion.CreateAttr("Version", "2.0")
		assertion.CreateAttr("IssueInstant", issueInstant)

		subj := assertion.CreateElement("saml:Subject")
		subj.CreateElement("saml:NameID").SetText(q.subject)

		stmt := assertion.CreateElement("saml:AuthzDecisionStatement")
		stmt.CreateAttr("Resource", q.resource)
		stmt.CreateAttr("Decision", decisionString(status))
		action := stmt.CreateElement("saml:Action")
		action.CreateAttr("Namespace", "urn:oasis:names:tc:SAML:1.0:action:ghpp")
		action.SetText("GET")
	}
	return doc
}

func decisionString(s acl.Status) string {
	switch s {
	case acl.Permit:
		return "Permit"
	case acl.Deny:
		return "Deny"
	default:
		return "Indeterminate"
	}
}

// elementsByTag walks the tree collecting elements by local name,
// ignoring namespace prefixes.
func elementsByTag(root *etree.Element, tag string) []*etree.Element {
	if root == nil {
		return nil
	}
	var out []*etree.Element
	var walk func(el *etree.Element)
	walk = func(el *etree.Element) {
		if el.Tag == tag {
			out = append(out, el)
		}
		for _, child := range el.ChildElements() {
			walk(child)
		}
	}
	walk(root)
	return out
}

func firstByTag(root *etree.Element, tag string) *etree.Element {
	els := elementsByTag(root, tag)
	if len(els) == 0 {
		return nil
	}
	return els[0]
}
