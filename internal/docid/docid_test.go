// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package docid

import (
	"net/url"
	"testing"
)

func mustCodec(t *testing.T, base string, isURL bool) *Codec {
	t.Helper()
	u, err := url.Parse(base)
	if err != nil {
		t.Fatalf("parse base: %v", err)
	}
	c, err := NewCodec(u, "/doc/", isURL)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := mustCodec(t, "http://adaptor.example.com:5678", false)

	tests := []struct {
		name string
		id   string
	}{
		{name: "plain", id: "readme.txt"},
		{name: "nested path", id: "folder/sub/file.pdf"},
		{name: "single dot segment", id: "a/./b"},
		{name: "double dot segment", id: "a/../b"},
		{name: "dot run", id: "...."},
		{name: "leading slash", id: "/a/./b"},
		{name: "trailing slash", id: "dir/"},
		{name: "spaces and unicode", id: "språk råd/fil 1.txt"},
		{name: "percent sign", id: "100%/done"},
		{name: "bang and backslash", id: `weird\!name`},
		{name: "query-ish characters", id: "a?b=c&d=e"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := c.Encode(DocId(tt.id))
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := c.Decode(u)
			if err != nil {
				t.Fatalf("decode %q: %v", u, err)
			}
			if string(got) != tt.id {
				t.Errorf("round trip = %q, want %q", got, tt.id)
			}
		})
	}
}

func TestEncodeExtendsDotRuns(t *testing.T) {
	c := mustCodec(t, "http://adaptor.example.com:5678", false)

	u, err := c.Encode(DocId("/a/./b"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := "/doc//a/.../b"
	if u.EscapedPath() != want {
		t.Errorf("escaped path = %q, want %q", u.EscapedPath(), want)
	}
}

func TestDecodeForeignURL(t *testing.T) {
	c := mustCodec(t, "http://adaptor.example.com:5678", false)

	tests := []struct {
		name string
		url  string
	}{
		{name: "other host", url: "http://other.example.com:5678/doc/x"},
		{name: "other port", url: "http://adaptor.example.com:9999/doc/x"},
		{name: "other scheme", url: "https://adaptor.example.com:5678/doc/x"},
		{name: "outside namespace", url: "http://adaptor.example.com:5678/dashboard"},
		{name: "empty id", url: "http://adaptor.example.com:5678/doc/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if _, err := c.Decode(u); err == nil {
				t.Errorf("Decode(%q) succeeded, want error", tt.url)
			}
		})
	}
}

func TestPassthroughMode(t *testing.T) {
	c := mustCodec(t, "http://adaptor.example.com:5678", true)

	id := DocId("http://cms.example.com/page?id=42")
	u, err := c.Encode(id)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if u.String() != string(id) {
		t.Errorf("encode = %q, want identifier verbatim", u)
	}
	got, err := c.Decode(u)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != id {
		t.Errorf("decode = %q, want %q", got, id)
	}
}

func TestNewCodecValidation(t *testing.T) {
	base, _ := url.Parse("http://example.com")
	if _, err := NewCodec(base, "doc/", false); err == nil {
		t.Error("missing leading slash accepted")
	}
	if _, err := NewCodec(base, "/doc", false); err == nil {
		t.Error("missing trailing slash accepted")
	}
	if _, err := NewCodec(nil, "/doc/", false); err == nil {
		t.Error("nil base accepted")
	}
}
