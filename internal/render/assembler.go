package render

import "farplane.ai/internal/tile"

// Allocation locates a tile's geometry in the shared GPU buffers.
type Allocation struct {
	IndexOffset  int64
	VertexOffset int64
	IndexBytes   int64
	// Address is the byte offset of the tile's baked data.
	Address int64
}

// Tile is the render-side view of a resident tile. Neighbors is the 2x2
// block anchored at Pos ([self, +z, +x, +x+z]); missing entries are nil.
type Tile struct {
	Pos       tile.Pos
	Alloc     *Allocation
	Neighbors [4]*Tile
	Parent    *Tile
}

func (t *Tile) HasAddress() bool { return t != nil && t.Alloc != nil }

// Assembler accumulates per-frame draw records. Implementations are owned by
// a single frame goroutine.
type Assembler interface {
	Add(t *Tile) bool
	Size() int
	Mark() Mark
	Restore(m Mark)
	Reset()
	Upload(u Uploader, slot int) error
}

const DrawRecordInts = 5

// DrawIndex emits one indirect draw command per tile:
// count, instanceCount, firstIndex, baseVertex, baseInstance.
type DrawIndex struct {
	buf         buffer
	vertexSize  int64
	indicesSize int64
}

func NewDrawIndex(vertexSize, indicesSize int64) *DrawIndex {
	return &DrawIndex{buf: newBuffer(), vertexSize: vertexSize, indicesSize: indicesSize}
}

func (d *DrawIndex) Add(t *Tile) bool {
	if !t.HasAddress() {
		return false
	}
	a := t.Alloc
	d.buf.put(
		int32(a.IndexBytes/d.indicesSize),
		1,
		int32(a.IndexOffset/d.indicesSize),
		int32(a.VertexOffset/d.vertexSize),
		0,
	)
	d.buf.size++
	return true
}

func (d *DrawIndex) Size() int                         { return d.buf.size }
func (d *DrawIndex) Mark() Mark                        { return d.buf.mark() }
func (d *DrawIndex) Restore(m Mark)                    { d.buf.restore(m) }
func (d *DrawIndex) Reset()                            { d.buf.reset() }
func (d *DrawIndex) Ints() []int32                     { return d.buf.ints() }
func (d *DrawIndex) Upload(u Uploader, slot int) error { return d.buf.upload(u, slot) }

const (
	StitchRecordInts = 4
	StitchRecords    = 8
	StitchTileInts   = StitchRecordInts * StitchRecords
)

// StitchIndex emits, per tile, the records the shader needs to stitch a tile
// against its same-level block and the parent level: 4 neighbor-block
// records, the parent, then the parent's three neighbors on the quadrant the
// tile occupies. Every tile contributes exactly StitchTileInts ints.
type StitchIndex struct {
	buf       buffer
	bakedSize int64
}

func NewStitchIndex(bakedSize int64) *StitchIndex {
	return &StitchIndex{buf: newBuffer(), bakedSize: bakedSize}
}

func (s *StitchIndex) Add(t *Tile) bool {
	if !t.HasAddress() {
		return false
	}
	s.buf.ensureWritable(StitchTileInts)
	for _, n := range t.Neighbors {
		s.putRecord(n)
	}
	if p := t.Parent; p != nil {
		xLSB := int((t.Pos.X & 1) << 1)
		zLSB := int(t.Pos.Z & 1)
		s.putRecord(p)
		s.putRecord(p.Neighbors[zLSB])
		s.putRecord(p.Neighbors[xLSB])
		s.putRecord(p.Neighbors[xLSB|zLSB])
	} else {
		for i := 0; i < 4; i++ {
			s.putRecord(nil)
		}
	}
	s.buf.size++
	return true
}

func (s *StitchIndex) putRecord(t *Tile) {
	if !t.HasAddress() {
		s.buf.put(0, 0, 0, 0)
		return
	}
	s.buf.put(t.Pos.X, t.Pos.Z, t.Pos.Level, int32(t.Alloc.Address/s.bakedSize))
}

func (s *StitchIndex) Size() int                         { return s.buf.size }
func (s *StitchIndex) Mark() Mark                        { return s.buf.mark() }
func (s *StitchIndex) Restore(m Mark)                    { s.buf.restore(m) }
func (s *StitchIndex) Reset()                            { s.buf.reset() }
func (s *StitchIndex) Ints() []int32                     { return s.buf.ints() }
func (s *StitchIndex) Upload(u Uploader, slot int) error { return s.buf.upload(u, slot) }
