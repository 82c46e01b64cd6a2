package netio

// Buffer is a growable byte region with an optional view window. A view's
// [offset, offset+length) must stay within the owning buffer's valid
// range; mutating the owner invalidates outstanding views, and the slice
// View.Slice returns shares the buffer's storage rather than copying it.
type Buffer struct {
	data []byte
}

// NewBuffer returns an empty buffer with capacityHint reserved up front.
func NewBuffer(capacityHint int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacityHint)}
}

// Grow ensures at least n more bytes of spare capacity are available and
// returns the writable tail as a slice of that length, without extending Len.
func (b *Buffer) Grow(n int) []byte {
	if cap(b.data)-len(b.data) < n {
		grown := make([]byte, len(b.data), len(b.data)+n)
		copy(grown, b.data)
		b.data = grown
	}
	return b.data[len(b.data) : len(b.data)+n]
}

// Commit extends Len by n bytes previously written into the slice Grow
// returned.
func (b *Buffer) Commit(n int) { b.data = b.data[:len(b.data)+n] }

// Append copies p onto the end of the buffer.
func (b *Buffer) Append(p []byte) { b.data = append(b.data, p...) }

// Bytes returns the buffer's valid contents. The returned slice is only
// valid until the next mutating call.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of valid bytes currently stored.
func (b *Buffer) Len() int { return len(b.data) }

// Reset empties the buffer while keeping its backing array.
func (b *Buffer) Reset() { b.data = b.data[:0] }

// Consume drops the first n bytes, shifting the remainder to the front.
// Used by readers after they have copied out a prefix of the contents.
func (b *Buffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.data) {
		b.data = b.data[:0]
		return
	}
	copy(b.data, b.data[n:])
	b.data = b.data[:len(b.data)-n]
}

// View is an [offset, offset+length) window into a Buffer's current
// contents.
type View struct {
	Offset int
	Length int
}

// Slice returns the bytes named by v as seen through b. Callers must not
// retain the result across a mutation of b.
func (v View) Slice(b *Buffer) []byte {
	return b.data[v.Offset : v.Offset+v.Length]
}
