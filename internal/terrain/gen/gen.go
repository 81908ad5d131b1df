// Package gen is the reference heightmap generator: hashed value noise on a
// square lattice, sampled at each column's world position so coarser levels
// agree with finer ones.
package gen

import (
	"context"

	"farplane.ai/internal/tile"
)

const (
	BlockStone uint32 = 1
	BlockGrass uint32 = 2
	BlockSand  uint32 = 3
	BlockSnow  uint32 = 4
)

const (
	BiomePlains uint8 = iota
	BiomeForest
	BiomeDesert
)

const fullLight = 15

type Params struct {
	Seed       int64
	BaseHeight int
	Amplitude  int
	SeaLevel   int
	CellSize   int
	// RegionSize is the biome region edge in blocks.
	RegionSize int
}

type Generator struct {
	p Params
}

func New(p Params) *Generator {
	if p.CellSize <= 0 {
		p.CellSize = 64
	}
	if p.RegionSize <= 0 {
		p.RegionSize = 256
	}
	return &Generator{p: p}
}

func FloorDiv(a, b int64) int64 {
	// b > 0
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}

func Mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed, x, z int64) uint64 {
	v := uint64(seed) ^ (uint64(x) * 0x9e3779b97f4a7c15) ^ (uint64(z) * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func BiomeAt(seed, x, z, regionSize int64) uint8 {
	if regionSize <= 0 {
		regionSize = 1
	}
	switch Hash2(seed, FloorDiv(x, regionSize), FloorDiv(z, regionSize)) % 3 {
	case 0:
		return BiomePlains
	case 1:
		return BiomeForest
	default:
		return BiomeDesert
	}
}

// lattice returns a value in [0, 1024).
func (g *Generator) lattice(cx, cz int64) int64 {
	return int64(Hash2(g.p.Seed, cx, cz) >> 54)
}

// Height is the terrain height at world block (x, z).
func (g *Generator) Height(x, z int64) int32 {
	cell := int64(g.p.CellSize)
	cx, cz := FloorDiv(x, cell), FloorDiv(z, cell)
	fx, fz := Mod(x, cell), Mod(z, cell)

	v00 := g.lattice(cx, cz)
	v10 := g.lattice(cx+1, cz)
	v01 := g.lattice(cx, cz+1)
	v11 := g.lattice(cx+1, cz+1)

	// Bilinear in fixed point; weights are fx/cell and fz/cell.
	top := v00*(cell-fx) + v10*fx
	bot := v01*(cell-fx) + v11*fx
	n := (top*(cell-fz) + bot*fz) / (cell * cell) // [0, 1024)

	return int32(int64(g.p.BaseHeight) + (n-512)*int64(g.p.Amplitude)/512)
}

func (g *Generator) Column(x, z int64) tile.Column {
	h := g.Height(x, z)
	biome := BiomeAt(g.p.Seed, x, z, int64(g.p.RegionSize))
	c := tile.Column{Height: h, Light: fullLight, Biome: biome}

	sea := int32(g.p.SeaLevel)
	switch {
	case h < sea:
		c.Block = BlockSand
		c.WaterLight = fullLight
		c.WaterBiome = biome
	case h > int32(g.p.BaseHeight+g.p.Amplitude*3/4):
		c.Block = BlockSnow
	case biome == BiomeDesert:
		c.Block = BlockSand
	default:
		c.Block = BlockGrass
	}
	return c
}

// Generate samples one column per (x, z), spaced 1<<Level blocks apart.
func (g *Generator) Generate(ctx context.Context, pos tile.Pos, out *tile.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	step := int64(1) << uint(pos.Level)
	ox, oz := pos.MinBlockX(), pos.MinBlockZ()
	out.Fill(func(x, z int) tile.Column {
		return g.Column(ox+int64(x)*step, oz+int64(z)*step)
	})
	return nil
}
