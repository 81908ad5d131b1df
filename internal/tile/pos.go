package tile

import "fmt"

// Pos addresses one tile: X/Z in tile units at Level (0 = finest).
type Pos struct {
	X     int32
	Z     int32
	Level int32
}

func PackXZ(x, z int32) uint64 {
	return uint64(uint32(x))<<32 | uint64(uint32(z))
}

func UnpackXZ(key uint64) (x, z int32) {
	return int32(uint32(key >> 32)), int32(uint32(key))
}

// Key packs X and Z. Level is not part of the key; callers keep one map per level.
func (p Pos) Key() uint64 {
	return PackXZ(p.X, p.Z)
}

func FromKey(key uint64, level int32) Pos {
	x, z := UnpackXZ(key)
	return Pos{X: x, Z: z, Level: level}
}

// Parent is the tile one level coarser that contains p.
func (p Pos) Parent() Pos {
	return Pos{X: p.X >> 1, Z: p.Z >> 1, Level: p.Level + 1}
}

// Child returns one of the four finer tiles covered by p; i = (dx<<1)|dz.
func (p Pos) Child(i int) Pos {
	return Pos{
		X:     p.X<<1 | int32((i>>1)&1),
		Z:     p.Z<<1 | int32(i&1),
		Level: p.Level - 1,
	}
}

// NeighborBlock returns the 2x2 block anchored at p, indexed by (dx<<1)|dz:
// [self, +z, +x, +x+z].
func (p Pos) NeighborBlock() [4]Pos {
	var out [4]Pos
	for i := range out {
		out[i] = Pos{X: p.X + int32(i>>1), Z: p.Z + int32(i&1), Level: p.Level}
	}
	return out
}

// MinBlockX is the world-space X of the tile's first column.
func (p Pos) MinBlockX() int64 {
	return int64(p.X) * Size << uint(p.Level)
}

func (p Pos) MinBlockZ() int64 {
	return int64(p.Z) * Size << uint(p.Level)
}

// Span is the world-space width covered by a tile at p.Level.
func (p Pos) Span() int64 {
	return int64(Size) << uint(p.Level)
}

func (p Pos) String() string {
	return fmt.Sprintf("%d@%d,%d", p.Level, p.X, p.Z)
}
