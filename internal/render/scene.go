package render

import (
	"sort"

	"farplane.ai/internal/tile"
)

// Scene holds the render-side tiles of all levels and the links between them.
// Like the assemblers it belongs to the frame goroutine.
type Scene struct {
	tiles map[tile.Pos]*Tile
	dirty bool
}

func NewScene() *Scene {
	return &Scene{tiles: map[tile.Pos]*Tile{}}
}

// Put adds pos or replaces its allocation. alloc may be nil while the
// geometry is still being baked.
func (s *Scene) Put(pos tile.Pos, alloc *Allocation) *Tile {
	t, ok := s.tiles[pos]
	if !ok {
		t = &Tile{Pos: pos}
		s.tiles[pos] = t
		s.dirty = true
	}
	t.Alloc = alloc
	return t
}

func (s *Scene) Remove(pos tile.Pos) bool {
	if _, ok := s.tiles[pos]; !ok {
		return false
	}
	delete(s.tiles, pos)
	s.dirty = true
	return true
}

func (s *Scene) Get(pos tile.Pos) (*Tile, bool) {
	t, ok := s.tiles[pos]
	return t, ok
}

func (s *Scene) Len() int { return len(s.tiles) }

// Positions returns every tile position ordered by level, x, z.
func (s *Scene) Positions() []tile.Pos {
	out := make([]tile.Pos, 0, len(s.tiles))
	for p := range s.tiles {
		out = append(out, p)
	}
	sortPositions(out)
	return out
}

// Link recomputes Neighbors and Parent of every tile from the tiles present now.
func (s *Scene) Link() {
	for pos, t := range s.tiles {
		for i, np := range pos.NeighborBlock() {
			t.Neighbors[i] = s.tiles[np]
		}
		t.Parent = s.tiles[pos.Parent()]
	}
	s.dirty = false
}

// Frame resets asm and adds the visible tiles in order. An add that would take
// asm past maxRecords is rolled back and ends the frame. Positions that are
// missing or not yet allocated are skipped. It returns the number of records.
func (s *Scene) Frame(asm Assembler, visible []tile.Pos, maxRecords int) int {
	if s.dirty {
		s.Link()
	}
	asm.Reset()
	for _, p := range visible {
		t, ok := s.tiles[p]
		if !ok {
			continue
		}
		m := asm.Mark()
		if !asm.Add(t) {
			continue
		}
		if maxRecords > 0 && asm.Size() > maxRecords {
			asm.Restore(m)
			break
		}
	}
	return asm.Size()
}

func sortPositions(ps []tile.Pos) {
	sort.Slice(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.Level != b.Level {
			return a.Level < b.Level
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
}
