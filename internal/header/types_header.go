/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package header implements the ordered, case-insensitive header field list
// used by requests and responses: requires insertion order and
// duplicates to survive, which rules out the map[string][]string shape the
// teacher package used for the same job.
package header

import (
	"time"
)

const toLower = 'a' - 'A'

// Well-known field names, canonical form. Kept from convention's constant
// table; names not needed by the core server were trimmed.
const (
	Accept           = "Accept"
	AcceptEncoding   = "Accept-Encoding"
	CacheControl     = "Cache-Control"
	Connection       = "Connection"
	ContentEncoding  = "Content-Encoding"
	ContentLength    = "Content-Length"
	ContentType      = "Content-Type"
	Date             = "Date"
	Expect           = "Expect"
	Host             = "Host"
	ServerHeader     = "Server"
	TransferEncoding = "Transfer-Encoding"
	Trailer          = "Trailer"
	UpgradeHeader    = "Upgrade"
	UserAgent        = "User-Agent"
	Vary             = "Vary"

	TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
)

var timeFormats = []string{
	TimeFormat,
	time.RFC850,
	time.ANSIC,
}

// commonHeader interns common header strings so canonicalization doesn't
// allocate for the hot path.
var commonHeader = make(map[string]string)

// isTokenTable is a copy of the RFC 7230 token table.
var isTokenTable = [127]bool{
	'0': true, '1': true, '2': true, '3': true, '4': true, '5': true, '6': true, '7': true,
	'8': true, '9': true,

	'a': true, 'b': true, 'c': true, 'd': true, 'e': true, 'f': true, 'g': true, 'h': true,
	'i': true, 'j': true, 'k': true, 'l': true, 'm': true, 'n': true, 'o': true, 'p': true,
	'q': true, 'r': true, 's': true, 't': true, 'u': true, 'v': true, 'w': true, 'x': true,
	'y': true, 'z': true,

	'A': true, 'B': true, 'C': true, 'D': true, 'E': true, 'F': true, 'G': true, 'H': true,
	'I': true, 'J': true, 'K': true, 'L': true, 'M': true, 'N': true, 'O': true, 'P': true,
	'Q': true, 'R': true, 'S': true, 'T': true, 'U': true, 'V': true, 'W': true, 'X': true,
	'Y': true, 'Z': true,

	'!': true, '#': true, '$': true, '%': true, '&': true, '\'': true, '*': true, '+': true,
	'-': true, '.': true, '^': true, '_': true, '`': true, '|': true, '~': true,
}

// Field is one (name, value) pair as it appeared on the wire.
type Field struct {
	Name  string // canonical form
	Value string
}

// List is an ordered sequence of header fields. Lookups and mutation by
// name are case-insensitive (comparisons are made on the canonical form);
// iteration preserves wire order and duplicate fields.
type List struct {
	fields []Field
}

func init() {
	for _, v := range []string{
		Accept, AcceptEncoding, CacheControl, Connection, ContentEncoding,
		ContentLength, ContentType, Date, Expect, Host, ServerHeader,
		TransferEncoding, Trailer, UpgradeHeader, UserAgent, Vary,
	} {
		commonHeader[v] = v
	}
}
