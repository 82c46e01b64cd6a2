/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package header

import "time"

// ParseTime parses a time header (such as Date) trying the three formats
// allowed by HTTP/1.1: TimeFormat, RFC850 and ANSIC.
func ParseTime(text string) (time.Time, error) {
	var t time.Time
	var err error
	for _, layout := range timeFormats {
		t, err = time.Parse(layout, text)
		if err == nil {
			return t, err
		}
	}
	return t, err
}

// TrimString returns s without leading and trailing ASCII space.
func TrimString(s string) string {
	for len(s) > 0 && isASCIISpace(s[0]) {
		s = s[1:]
	}
	for len(s) > 0 && isASCIISpace(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

// CanonicalHeaderKey returns the canonical format of the header key s: the
// first letter and any letter following a hyphen are upper-cased, the rest
// lower-cased. A key containing invalid header-field bytes is returned
// unmodified.
func CanonicalHeaderKey(s string) string {
	upper := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !validHeaderFieldByte(c) {
			return s
		}
		if upper && 'a' <= c && c <= 'z' {
			return canonicalHeaderKeyBytes([]byte(s))
		}
		if !upper && 'A' <= c && c <= 'Z' {
			return canonicalHeaderKeyBytes([]byte(s))
		}
		upper = c == '-'
	}
	return s
}

func isTokenRune(r rune) bool {
	i := int(r)
	return i < len(isTokenTable) && isTokenTable[i]
}

// ValidFieldName reports whether v is a syntactically valid header field
// name (RFC 7230 token).
func ValidFieldName(v string) bool {
	if len(v) == 0 {
		return false
	}
	for _, r := range v {
		if !isTokenRune(r) {
			return false
		}
	}
	return true
}

// ValidFieldValue reports whether v contains only bytes legal in a header
// field value (no control bytes other than horizontal whitespace).
func ValidFieldValue(v string) bool {
	for i := 0; i < len(v); i++ {
		b := v[i]
		if isCTL(b) && !isLWS(b) {
			return false
		}
	}
	return true
}

// New returns an empty header field list.
func New() *List {
	return &List{}
}
