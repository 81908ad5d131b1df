package render

import (
	"bytes"
	"encoding/binary"
	"testing"

	"farplane.ai/internal/tile"
)

type recordingUploader struct {
	calls int
	slot  int
	data  []byte
}

func (r *recordingUploader) Upload(slot int, data []byte) error {
	r.calls++
	r.slot = slot
	r.data = data
	return nil
}

func allocated(x, z, level int32, addr int64) *Tile {
	return &Tile{
		Pos:   tile.Pos{X: x, Z: z, Level: level},
		Alloc: &Allocation{IndexOffset: 400, VertexOffset: 1600, IndexBytes: 120, Address: addr},
	}
}

func TestDrawIndex_AddWithoutAllocation(t *testing.T) {
	d := NewDrawIndex(16, 4)
	if d.Add(&Tile{Pos: tile.Pos{X: 1}}) {
		t.Fatalf("add without allocation returned true")
	}
	if d.Add(nil) {
		t.Fatalf("add nil returned true")
	}
	if d.Size() != 0 || len(d.Ints()) != 0 {
		t.Fatalf("buffer mutated: size=%d ints=%d", d.Size(), len(d.Ints()))
	}
}

func TestDrawIndex_Record(t *testing.T) {
	d := NewDrawIndex(16, 4)
	if !d.Add(allocated(0, 0, 0, 0)) {
		t.Fatalf("add returned false")
	}
	want := []int32{30, 1, 100, 100, 0}
	got := d.Ints()
	if len(got) != DrawRecordInts {
		t.Fatalf("ints=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record=%v want %v", got, want)
		}
	}
}

func TestStitchIndex_NoParentIsZeroPadded(t *testing.T) {
	s := NewStitchIndex(256)
	self := allocated(3, 2, 0, 512)
	self.Neighbors[0] = self
	self.Neighbors[2] = &Tile{Pos: tile.Pos{X: 4, Z: 2}} // present but not allocated
	if !s.Add(self) {
		t.Fatalf("add returned false")
	}
	got := s.Ints()
	if len(got) != StitchTileInts {
		t.Fatalf("width=%d want %d", len(got), StitchTileInts)
	}
	if got[0] != 3 || got[1] != 2 || got[2] != 0 || got[3] != 2 {
		t.Fatalf("self record=%v", got[0:4])
	}
	for i := 4; i < StitchTileInts; i++ {
		if got[i] != 0 {
			t.Fatalf("expected zero at %d, got %v", i, got)
		}
	}
}

func TestStitchIndex_ParentQuadrant(t *testing.T) {
	sc := NewScene()
	a := func(addr int64) *Allocation { return &Allocation{Address: addr} }
	sc.Put(tile.Pos{X: 3, Z: 2}, a(256))
	sc.Put(tile.Pos{X: 1, Z: 1, Level: 1}, a(512))  // parent
	sc.Put(tile.Pos{X: 1, Z: 2, Level: 1}, a(768))  // parent +z
	sc.Put(tile.Pos{X: 2, Z: 1, Level: 1}, a(1024)) // parent +x
	sc.Put(tile.Pos{X: 2, Z: 2, Level: 1}, a(1280)) // parent +x+z
	sc.Link()

	self, _ := sc.Get(tile.Pos{X: 3, Z: 2})
	s := NewStitchIndex(256)
	if !s.Add(self) {
		t.Fatalf("add returned false")
	}
	got := s.Ints()
	// x odd, z even: xLSB=2, zLSB=0.
	wantTail := []int32{
		1, 1, 1, 2, // parent
		1, 1, 1, 2, // parent.Neighbors[0]
		2, 1, 1, 4, // parent.Neighbors[2]
		2, 1, 1, 4, // parent.Neighbors[2]
	}
	tail := got[4*StitchRecordInts:]
	for i := range wantTail {
		if tail[i] != wantTail[i] {
			t.Fatalf("parent records=%v want %v", tail, wantTail)
		}
	}
}

func TestAssembler_RestoreIsIdempotent(t *testing.T) {
	for _, asm := range []Assembler{NewDrawIndex(16, 4), NewStitchIndex(256)} {
		asm.Add(allocated(0, 0, 0, 256))
		m := asm.Mark()
		size := asm.Size()
		before := append([]int32(nil), ints(asm)...)

		for i := 0; i < 5; i++ {
			asm.Add(allocated(int32(i), 1, 0, 256))
		}
		asm.Restore(m)
		asm.Restore(m)
		if asm.Size() != size {
			t.Fatalf("%T size=%d want %d", asm, asm.Size(), size)
		}
		after := ints(asm)
		if len(after) != len(before) {
			t.Fatalf("%T ints=%d want %d", asm, len(after), len(before))
		}
		for i := range before {
			if after[i] != before[i] {
				t.Fatalf("%T prefix changed at %d", asm, i)
			}
		}
	}
}

func ints(a Assembler) []int32 {
	switch v := a.(type) {
	case *DrawIndex:
		return v.Ints()
	case *StitchIndex:
		return v.Ints()
	}
	return nil
}

func TestAssembler_UploadEmptySendsDirective(t *testing.T) {
	u := &recordingUploader{}
	s := NewStitchIndex(256)
	if err := s.Upload(u, 3); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if u.calls != 1 || u.slot != 3 || u.data != nil {
		t.Fatalf("empty upload=%+v", u)
	}

	s.Add(allocated(1, 1, 0, 256))
	s.Reset()
	u = &recordingUploader{}
	_ = s.Upload(u, 0)
	if u.calls != 1 || u.data != nil {
		t.Fatalf("upload after reset=%+v", u)
	}
}

func TestAssembler_UploadLittleEndian(t *testing.T) {
	u := &recordingUploader{}
	d := NewDrawIndex(16, 4)
	d.Add(allocated(0, 0, 0, 0))
	if err := d.Upload(u, 1); err != nil {
		t.Fatalf("upload: %v", err)
	}
	want := make([]byte, 0, DrawRecordInts*4)
	for _, v := range []int32{30, 1, 100, 100, 0} {
		want = binary.LittleEndian.AppendUint32(want, uint32(v))
	}
	if !bytes.Equal(u.data, want) {
		t.Fatalf("upload bytes=%v want %v", u.data, want)
	}
}

func TestStitchIndex_GrowthPreservesContent(t *testing.T) {
	s := NewStitchIndex(256)
	const n = 100 // 3200 ints, several doublings past the initial 256
	for i := 0; i < n; i++ {
		tl := allocated(int32(i), int32(-i), 0, int64(i)*256)
		tl.Neighbors[0] = tl
		if !s.Add(tl) {
			t.Fatalf("add %d returned false", i)
		}
	}
	got := s.Ints()
	if len(got) != n*StitchTileInts || s.Size() != n {
		t.Fatalf("len=%d size=%d", len(got), s.Size())
	}
	for i := 0; i < n; i++ {
		r := got[i*StitchTileInts:]
		if r[0] != int32(i) || r[1] != int32(-i) || r[3] != int32(i) {
			t.Fatalf("record %d=%v", i, r[:4])
		}
	}
}
