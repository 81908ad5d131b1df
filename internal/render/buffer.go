package render

import "encoding/binary"

const initialInts = 256

// Mark is a rollback point for an index buffer.
type Mark struct {
	size int
	pos  int
}

// buffer is a growable run of int32 records with a write cursor.
type buffer struct {
	data []int32
	pos  int
	size int
}

func newBuffer() buffer {
	return buffer{data: make([]int32, initialInts)}
}

func (b *buffer) ensureWritable(n int) {
	if b.pos+n <= len(b.data) {
		return
	}
	c := len(b.data)
	if c == 0 {
		c = initialInts
	}
	for b.pos+n > c {
		c *= 2
	}
	grown := make([]int32, c)
	copy(grown, b.data[:b.pos])
	b.data = grown
}

func (b *buffer) put(vs ...int32) {
	b.ensureWritable(len(vs))
	b.pos += copy(b.data[b.pos:], vs)
}

func (b *buffer) mark() Mark { return Mark{size: b.size, pos: b.pos} }

func (b *buffer) restore(m Mark) {
	b.size = m.size
	b.pos = m.pos
}

func (b *buffer) reset() {
	b.size = 0
	b.pos = 0
}

func (b *buffer) ints() []int32 { return b.data[:b.pos] }

// Uploader hands an encoded index buffer to the GPU side. A nil data slice is
// an explicit "nothing to draw" directive for slot.
type Uploader interface {
	Upload(slot int, data []byte) error
}

func (b *buffer) upload(u Uploader, slot int) error {
	if b.size == 0 {
		return u.Upload(slot, nil)
	}
	out := make([]byte, 0, b.pos*4)
	for _, v := range b.data[:b.pos] {
		out = binary.LittleEndian.AppendUint32(out, uint32(v))
	}
	return u.Upload(slot, out)
}
