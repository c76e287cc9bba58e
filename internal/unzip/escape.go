// Searchbridge Adaptor - Content Repository to Search Appliance Bridge
// Copyright 2026 Searchbridge Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/searchbridge/adaptor

package unzip

import "strings"

// Delimiter separates the outer docid from archive entry paths inside a
// virtual docid. Literal delimiters in a component are escaped.
const Delimiter = "!"

const escapedDelimiter = `\!`

// escape protects literal delimiters and escape characters in one docid
// component. Backslash goes first so a literal backslash can never be
// mistaken for the delimiter escape.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, Delimiter, escapedDelimiter)
}

// unescape undoes escape: every backslash-led pair collapses to its
// second character.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// split cuts a virtual docid at its first unescaped delimiter. The head
// comes back unescaped; the tail keeps its escaping so deeper nesting can
// be split again. A docid without a delimiter returns ("", false) for the
// tail.
func split(id string) (head, tail string, nested bool) {
	for i := 0; i < len(id); i++ {
		switch id[i] {
		case '\\':
			i++
		case '!':
			return unescape(id[:i]), id[i+1:], true
		}
	}
	return unescape(id), "", false
}
