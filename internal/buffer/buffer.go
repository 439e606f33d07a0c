// Package buffer implements the pushback byte store that sits in
// front of a Transport: bytes read speculatively by the line framer but
// not consumed are pushed back here and drained before the next
// underlying read.
package buffer

// Buffer is an in-memory FIFO byte store. It is not safe for concurrent
// use; each Buffer is owned by exactly one Transport.
//
// Unlike a fixed-capacity ring, Buffer grows and compacts like the
// original buffer_t (realloc + memmove): append is O(1) amortized,
// take is O(n) in the bytes removed, and prepend copies the whole
// unread contents into a new slice, so it is O(n) in the bytes stored.
type Buffer struct {
	data []byte
	off  int // read offset into data; bytes before off are already taken
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Size reports the number of bytes currently readable.
func (b *Buffer) Size() int {
	return len(b.data) - b.off
}

// Append adds src to the tail of the buffer.
func (b *Buffer) Append(src []byte) {
	if len(src) == 0 {
		return
	}
	b.compactIfWasteful()
	b.data = append(b.data, src...)
}

// Prepend reinserts src at the head of the buffer, ahead of any bytes
// already stored. Used by the line framer to push back an unread tail.
func (b *Buffer) Prepend(src []byte) {
	if len(src) == 0 {
		return
	}
	remaining := b.data[b.off:]
	merged := make([]byte, 0, len(src)+len(remaining))
	merged = append(merged, src...)
	merged = append(merged, remaining...)
	b.data = merged
	b.off = 0
}

// Take removes and returns up to len(dst) bytes from the head of the
// buffer, writing them into dst and reporting how many bytes were
// copied. Insertion order is preserved.
func (b *Buffer) Take(dst []byte) int {
	avail := b.Size()
	n := len(dst)
	if n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}
	copy(dst, b.data[b.off:b.off+n])
	b.off += n
	if b.off == len(b.data) {
		b.data = b.data[:0]
		b.off = 0
	}
	return n
}

// Clear discards all buffered bytes.
func (b *Buffer) Clear() {
	b.data = b.data[:0]
	b.off = 0
}

// compactIfWasteful slides the unread tail down to index 0 once the
// already-taken prefix dominates the backing array, so Append doesn't
// grow the slice forever across a long-lived session.
func (b *Buffer) compactIfWasteful() {
	if b.off == 0 {
		return
	}
	if b.off < len(b.data)/2 {
		return
	}
	remaining := b.Size()
	copy(b.data, b.data[b.off:])
	b.data = b.data[:remaining]
	b.off = 0
}
