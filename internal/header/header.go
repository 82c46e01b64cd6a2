/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package header

import (
	"io"
	"strings"
)

var newlineToSpace = strings.NewReplacer("\n", " ", "\r", " ")

// Add appends a (name, value) pair, preserving any existing fields under
// the same name. Comparisons are case-insensitive on name.
func (l *List) Add(name, value string) {
	l.fields = append(l.fields, Field{Name: CanonicalHeaderKey(name), Value: value})
}

// Set replaces all fields named name with a single field carrying value.
func (l *List) Set(name, value string) {
	canon := CanonicalHeaderKey(name)
	l.Del(name)
	l.fields = append(l.fields, Field{Name: canon, Value: value})
	_ = canon
}

// Get returns the first value stored under name, or "" if absent.
func (l *List) Get(name string) string {
	if l == nil {
		return ""
	}
	canon := CanonicalHeaderKey(name)
	for _, f := range l.fields {
		if f.Name == canon {
			return f.Value
		}
	}
	return ""
}

// GetAll returns every value stored under name, in wire order.
func (l *List) GetAll(name string) []string {
	if l == nil {
		return nil
	}
	canon := CanonicalHeaderKey(name)
	var out []string
	for _, f := range l.fields {
		if f.Name == canon {
			out = append(out, f.Value)
		}
	}
	return out
}

// Contains reports whether any field is stored under name.
func (l *List) Contains(name string) bool {
	if l == nil {
		return false
	}
	canon := CanonicalHeaderKey(name)
	for _, f := range l.fields {
		if f.Name == canon {
			return true
		}
	}
	return false
}

// Del removes every field stored under name.
func (l *List) Del(name string) {
	if l == nil {
		return
	}
	canon := CanonicalHeaderKey(name)
	out := l.fields[:0]
	for _, f := range l.fields {
		if f.Name != canon {
			out = append(out, f)
		}
	}
	l.fields = out
}

// Each calls fn for every field in wire order. fn must not mutate l.
func (l *List) Each(fn func(name, value string)) {
	if l == nil {
		return
	}
	for _, f := range l.fields {
		fn(f.Name, f.Value)
	}
}

// Len returns the number of stored fields, counting duplicates.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.fields)
}

// Clone returns a deep copy of l.
func (l *List) Clone() *List {
	if l == nil {
		return nil
	}
	out := &List{fields: make([]Field, len(l.fields))}
	copy(out.fields, l.fields)
	return out
}

// Write serializes the list in wire format: "Name: value\r\n" per field,
// in insertion order (no re-sorting — unlike convention, which sorted by
// key; calls for wire order to be preserved as received/set).
func (l *List) Write(w io.Writer) error {
	if l == nil {
		return nil
	}
	ws, ok := w.(interface {
		WriteString(string) (int, error)
	})
	if !ok {
		ws = &stringWriter{w}
	}
	for _, f := range l.fields {
		v := newlineToSpace.Replace(f.Value)
		v = TrimString(v)
		for _, s := range [...]string{f.Name, ": ", v, "\r\n"} {
			if _, err := ws.WriteString(s); err != nil {
				return err
			}
		}
	}
	return nil
}

type stringWriter struct {
	w io.Writer
}

func (s *stringWriter) WriteString(str string) (int, error) {
	return s.w.Write([]byte(str))
}
