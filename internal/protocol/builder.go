package protocol

// PacketBuilder writes fields into a fixed-size packet buffer.
// Writes past the end of the buffer are silently dropped, so a builder
// can never produce a packet larger than the size it was created with.
type PacketBuilder struct {
	buf []byte
	off int
}

// NewPacketBuilder creates a builder for a zero-filled packet of size bytes.
func NewPacketBuilder(size int) *PacketBuilder {
	return &PacketBuilder{buf: make([]byte, size)}
}

// Reset zeroes the buffer and rewinds to the start.
func (b *PacketBuilder) Reset() {
	clear(b.buf)
	b.off = 0
}

// WriteInt16 writes a 2-byte signed integer in ByteOrder.
func (b *PacketBuilder) WriteInt16(v int16) *PacketBuilder {
	if b.off+2 > len(b.buf) {
		b.off = len(b.buf)
		return b
	}
	ByteOrder.PutUint16(b.buf[b.off:], uint16(v))
	b.off += 2
	return b
}

// WriteFixedString writes s into a field of exactly width bytes.
// Shorter input is zero padded; longer input is cut at width bytes even if
// that splits a multi-byte UTF-8 sequence.
func (b *PacketBuilder) WriteFixedString(s string, width int) *PacketBuilder {
	end := b.off + width
	if end > len(b.buf) {
		end = len(b.buf)
	}
	n := copy(b.buf[b.off:end], s)
	clear(b.buf[b.off+n : end])
	b.off = end
	return b
}

// Build returns the packet bytes. The full buffer is returned even when
// fewer bytes were written; unwritten space stays zero.
func (b *PacketBuilder) Build() []byte {
	return b.buf
}

// Len returns the number of bytes written so far.
func (b *PacketBuilder) Len() int {
	return b.off
}
