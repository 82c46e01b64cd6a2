package http1

import (
	"io"
	"io/ioutil"
	"os"

	"github.com/christianparpart/x0-sub009/internal/netio"
)

// BodyReader implements the request body's three lifecycle modes: fully
// buffered, disk-backed temp-streamed, or incrementally consumed by the
// handler. It is fed by the Parser's onMessageContent callback and drained
// by the Handler.
//
// Read returns whatever is currently buffered (up to len(p)) and consumes
// what it returned; it does not block waiting for more, and once the buffer
// is empty a call returns (0, nil) until the Parser pushes more data or
// (0, io.EOF) once the message has ended.
type BodyReader struct {
	buf    netio.Buffer
	eof    bool
	err    error
	spill  *os.File // non-nil once SpillThreshold has been exceeded
	spillN int64

	// SpillThreshold is the cumulative byte count after which further
	// pushed content is written to a disk-backed temp file instead of
	// being held in memory. Zero disables spilling.
	SpillThreshold int64
	total          int64
}

// NewBodyReader returns an empty BodyReader ready to receive pushed chunks.
func NewBodyReader() *BodyReader {
	return &BodyReader{buf: *netio.NewBuffer(0)}
}

// push is called by the Channel's parser listener for each
// onMessageContent chunk. It never blocks.
func (b *BodyReader) push(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	b.total += int64(len(p))
	if b.SpillThreshold > 0 && b.total > b.SpillThreshold {
		if b.spill == nil {
			f, err := ioutil.TempFile("", "flowserve-body-*")
			if err != nil {
				return err
			}
			b.spill = f
		}
		if b.buf.Len() > 0 {
			if _, err := b.spill.Write(b.buf.Bytes()); err != nil {
				return err
			}
			b.buf.Reset()
		}
		n, err := b.spill.Write(p)
		b.spillN += int64(n)
		return err
	}
	b.buf.Append(p)
	return nil
}

// end is called by the Channel's parser listener on onMessageEnd.
func (b *BodyReader) end() { b.eof = true }

// abort records a terminal error (transport/protocol failure mid-body).
func (b *BodyReader) abort(err error) { b.err = err; b.eof = true }

// PushContent is push exported for wire protocols outside this package
// (internal/fastcgi's STDIN records) that feed a BodyReader without going
// through this package's own Parser/Listener.
func (b *BodyReader) PushContent(p []byte) error { return b.push(p) }

// EndContent is end exported for the same reason as PushContent.
func (b *BodyReader) EndContent() { b.end() }

// Read implements the semantics documented on BodyReader: returns buffered
// bytes and empties the buffer, or (0, io.EOF) once fully drained and ended.
func (b *BodyReader) Read(p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	if b.buf.Len() > 0 {
		n := copy(p, b.buf.Bytes())
		b.buf.Consume(n)
		return n, nil
	}
	if b.eof {
		return 0, io.EOF
	}
	return 0, nil
}

// Buffered reports the number of bytes currently held in memory, without
// consuming them.
func (b *BodyReader) Buffered() int { return b.buf.Len() }

// EOF reports whether onMessageEnd has been observed.
func (b *BodyReader) EOF() bool { return b.eof }

// Spilled reports whether this body has overflowed to a temp file and, if
// so, returns it positioned for reading from the start.
func (b *BodyReader) Spilled() (*os.File, bool) {
	if b.spill == nil {
		return nil, false
	}
	_, _ = b.spill.Seek(0, io.SeekStart)
	return b.spill, true
}

// Close releases the disk-backed temp file, if any.
func (b *BodyReader) Close() error {
	if b.spill == nil {
		return nil
	}
	name := b.spill.Name()
	err := b.spill.Close()
	_ = os.Remove(name)
	return err
}
