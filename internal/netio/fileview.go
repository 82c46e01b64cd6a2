package netio

import (
	"os"
	"sync/atomic"
)

// FileView is a reference to a byte range of an OS file handle, used to
// express zero-copy response segments (the sendfile fast path lives in
// StreamEndpoint.FlushFile). The handle is reference-counted so a response's
// file-backed chunk can outlive the request that queued it, but never past
// the point the last reference releases it.
type FileView struct {
	shared *sharedFile
	Offset int64
	Length int64
}

type sharedFile struct {
	f    *os.File
	owns bool
	refs int32
}

// NewFileView wraps f, starting at offset for length bytes. If owns is true
// the handle is closed once every derived FileView has been released.
func NewFileView(f *os.File, offset, length int64, owns bool) FileView {
	return FileView{shared: &sharedFile{f: f, owns: owns, refs: 1}, Offset: offset, Length: length}
}

// Retain returns a new FileView over the same handle, bumping the shared
// reference count. Each Retain needs its own matching Release.
func (v FileView) Retain() FileView {
	atomic.AddInt32(&v.shared.refs, 1)
	return v
}

// Slice narrows v to the sub-range [off, off+n), retaining the same
// underlying handle reference.
func (v FileView) Slice(off, n int64) FileView {
	return FileView{shared: v.shared, Offset: v.Offset + off, Length: n}
}

// File returns the underlying handle. Valid only while the FileView (or a
// Retain'd sibling) has not yet been Released.
func (v FileView) File() *os.File { return v.shared.f }

// Release drops one reference; when the count reaches zero and owns was
// set, the underlying handle is closed.
func (v FileView) Release() error {
	if atomic.AddInt32(&v.shared.refs, -1) > 0 {
		return nil
	}
	if v.shared.owns {
		return v.shared.f.Close()
	}
	return nil
}
