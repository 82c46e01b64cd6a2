// Package stream implements the sink/source streaming pipeline:
// polymorphic producers (Source) and consumers (Sink) of response body
// bytes, a filter chain for transforming content (compression), and a
// small async-write driver that pumps a Source into a Sink under
// backpressure.
package stream

import (
	"io"

	"github.com/christianparpart/x0-sub009/internal/netio"
)

// Source is the producer capability: pull bytes, report EOF, and accept a
// Sink's visitor for fast-path dispatch (e.g. file→socket sendfile).
// Variants: BufferSource, FileSource, FilterSource, CompositeSource.
type Source interface {
	// Pull appends the next available bytes to buf, growing it as needed,
	// and returns the number of bytes appended. Returns (0, io.EOF) once
	// exhausted.
	Pull(buf *netio.Buffer) (int, error)

	// EOF reports whether the source has no more bytes to offer.
	EOF() bool

	// Accept lets a Sink select its fastest path for this concrete source.
	Accept(v SinkVisitor) error
}

// SinkVisitor is implemented by a Sink to claim an optimal transfer path
// per source variant; Default is used when no faster path applies.
type SinkVisitor interface {
	VisitBuffer(b *BufferSource) error
	VisitFile(f *FileSource) error
	Default(s Source) error
}

// BufferSource serves bytes from an in-memory slice, advancing a cursor as
// it is drained.
type BufferSource struct {
	data []byte
	pos  int
}

// NewBufferSource wraps p; p must not be mutated while the source is live.
func NewBufferSource(p []byte) *BufferSource { return &BufferSource{data: p} }

func (s *BufferSource) Pull(buf *netio.Buffer) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := len(s.data) - s.pos
	dst := buf.Grow(n)
	copy(dst, s.data[s.pos:])
	buf.Commit(n)
	s.pos += n
	return n, nil
}

func (s *BufferSource) EOF() bool { return s.pos >= len(s.data) }

func (s *BufferSource) Accept(v SinkVisitor) error { return v.VisitBuffer(s) }

// Remaining returns the unconsumed tail, used by sinks that write directly
// (write/writev) instead of pulling through a Buffer.
func (s *BufferSource) Remaining() []byte { return s.data[s.pos:] }

// Advance moves the cursor forward by n bytes, used after a partial
// Endpoint.Flush of Remaining.
func (s *BufferSource) Advance(n int) { s.pos += n }

// FileSource serves a zero-copy byte range of an OS file via a FileView.
// Sinks that support FlushFile should prefer Accept's VisitFile path over
// Pull.
type FileSource struct {
	view netio.FileView
	pos  int64
}

// NewFileSource wraps a FileView for zero-copy response segments.
func NewFileSource(v netio.FileView) *FileSource { return &FileSource{view: v} }

func (s *FileSource) View() netio.FileView { return s.view.Slice(s.pos, s.view.Length-s.pos) }

func (s *FileSource) Advance(n int64) { s.pos += n }

func (s *FileSource) EOF() bool { return s.pos >= s.view.Length }

func (s *FileSource) Accept(v SinkVisitor) error { return v.VisitFile(s) }

// Pull is the fallback path (read+write) used by sinks with no sendfile
// support, e.g. buffer-only sinks used in tests.
func (s *FileSource) Pull(buf *netio.Buffer) (int, error) {
	if s.EOF() {
		return 0, io.EOF
	}
	f := s.view.File()
	n := s.view.Length - s.pos
	if n > 64*1024 {
		n = 64 * 1024
	}
	dst := buf.Grow(int(n))
	read, err := f.ReadAt(dst, s.view.Offset+s.pos)
	if read > 0 {
		buf.Commit(read)
		s.pos += int64(read)
	}
	if err == io.EOF && read > 0 {
		err = nil
	}
	return read, err
}

// CompositeSource iterates a queue of sources in order; it is EOF only
// when the queue is empty and the last source reported EOF.
type CompositeSource struct {
	queue []Source
}

// NewCompositeSource returns a composite over sources, consumed in order.
func NewCompositeSource(sources ...Source) *CompositeSource {
	return &CompositeSource{queue: sources}
}

// Append enqueues another source to be drained after the current ones.
func (s *CompositeSource) Append(src Source) { s.queue = append(s.queue, src) }

func (s *CompositeSource) current() Source {
	for len(s.queue) > 0 {
		if !s.queue[0].EOF() {
			return s.queue[0]
		}
		s.queue = s.queue[1:]
	}
	return nil
}

func (s *CompositeSource) Pull(buf *netio.Buffer) (int, error) {
	cur := s.current()
	if cur == nil {
		return 0, io.EOF
	}
	return cur.Pull(buf)
}

func (s *CompositeSource) EOF() bool { return s.current() == nil }

func (s *CompositeSource) Accept(v SinkVisitor) error {
	cur := s.current()
	if cur == nil {
		return v.Default(s)
	}
	return cur.Accept(v)
}
