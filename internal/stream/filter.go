package stream

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/christianparpart/x0-sub009/internal/netio"
)

// Filter is a stateful byte transformer in the response pipeline: Process
// is pure with respect to its own internal state and must be flushed on
// eof.
type Filter interface {
	// Process transforms chunk (which may be empty on a flush-only call)
	// and returns the transformed bytes. Compression filters accumulate
	// state across calls and flush pending output when eof is true.
	Process(chunk []byte, eof bool) ([]byte, error)

	// Name is the Content-Encoding token this filter produces (e.g. "gzip").
	Name() string
}

// FilterSource wraps an inner Source with a chain of Filters applied in
// order (chain[0] runs first).
type FilterSource struct {
	inner   Source
	filters []Filter
	pending bytes.Buffer
	eof     bool
}

// NewFilterSource builds a filtered view of inner through chain, applied
// left to right (chain[0] runs first).
func NewFilterSource(inner Source, chain ...Filter) *FilterSource {
	return &FilterSource{inner: inner, filters: chain}
}

func (s *FilterSource) refill() error {
	raw := netio.NewBuffer(32 * 1024)
	n, err := s.inner.Pull(raw)
	innerEOF := err == io.EOF || (n == 0 && s.inner.EOF())
	chunk := raw.Bytes()[:n]
	for _, f := range s.filters {
		out, ferr := f.Process(chunk, innerEOF)
		if ferr != nil {
			return ferr
		}
		chunk = out
	}
	if len(chunk) > 0 {
		s.pending.Write(chunk)
	}
	if innerEOF {
		s.eof = true
	}
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (s *FilterSource) Pull(buf *netio.Buffer) (int, error) {
	for s.pending.Len() == 0 && !s.eof {
		if err := s.refill(); err != nil {
			return 0, err
		}
	}
	if s.pending.Len() == 0 {
		return 0, io.EOF
	}
	n := s.pending.Len()
	dst := buf.Grow(n)
	copy(dst, s.pending.Bytes())
	buf.Commit(n)
	s.pending.Reset()
	return n, nil
}

func (s *FilterSource) EOF() bool { return s.eof && s.pending.Len() == 0 }

func (s *FilterSource) Accept(v SinkVisitor) error { return v.Default(s) }

// gzipFilter adapts github.com/klauspost/compress/gzip to the Filter
// interface.
type gzipFilter struct {
	buf bytes.Buffer
	zw  *gzip.Writer
}

// NewGzipFilter returns a Filter producing gzip-compressed output.
func NewGzipFilter() Filter {
	f := &gzipFilter{}
	f.zw = gzip.NewWriter(&f.buf)
	return f
}

func (f *gzipFilter) Name() string { return "gzip" }

func (f *gzipFilter) Process(chunk []byte, eof bool) ([]byte, error) {
	if len(chunk) > 0 {
		if _, err := f.zw.Write(chunk); err != nil {
			return nil, err
		}
	}
	if eof {
		if err := f.zw.Close(); err != nil {
			return nil, err
		}
	} else if err := f.zw.Flush(); err != nil {
		return nil, err
	}
	out := append([]byte(nil), f.buf.Bytes()...)
	f.buf.Reset()
	return out, nil
}

// deflateFilter adapts github.com/klauspost/compress/flate.
type deflateFilter struct {
	buf bytes.Buffer
	zw  *flate.Writer
}

// NewDeflateFilter returns a Filter producing raw DEFLATE output.
func NewDeflateFilter() Filter {
	f := &deflateFilter{}
	zw, _ := flate.NewWriter(&f.buf, flate.DefaultCompression)
	f.zw = zw
	return f
}

func (f *deflateFilter) Name() string { return "deflate" }

func (f *deflateFilter) Process(chunk []byte, eof bool) ([]byte, error) {
	if len(chunk) > 0 {
		if _, err := f.zw.Write(chunk); err != nil {
			return nil, err
		}
	}
	if eof {
		if err := f.zw.Close(); err != nil {
			return nil, err
		}
	} else if err := f.zw.Flush(); err != nil {
		return nil, err
	}
	out := append([]byte(nil), f.buf.Bytes()...)
	f.buf.Reset()
	return out, nil
}

// identityFilter is a pass-through Filter that returns each chunk unchanged.
type identityFilter struct{}

// NewIdentityFilter returns a no-op Filter.
func NewIdentityFilter() Filter { return identityFilter{} }

func (identityFilter) Name() string { return "identity" }

func (identityFilter) Process(chunk []byte, eof bool) ([]byte, error) { return chunk, nil }
