package gen

import (
	"context"
	"errors"
	"testing"

	"farplane.ai/internal/tile"
)

func testParams() Params {
	return Params{Seed: 42, BaseHeight: 64, Amplitude: 32, SeaLevel: 60, CellSize: 16}
}

func generate(t *testing.T, g *Generator, pos tile.Pos) *tile.Data {
	t.Helper()
	d := tile.New(pos)
	if err := d.Update(func(w *tile.Writer) error { return g.Generate(context.Background(), pos, w) }); err != nil {
		t.Fatalf("generate %v: %v", pos, err)
	}
	return d
}

func TestFloorDivMod_Negative(t *testing.T) {
	if FloorDiv(-1, 16) != -1 || Mod(-1, 16) != 15 {
		t.Fatalf("floor div/mod wrong for -1")
	}
	if FloorDiv(-16, 16) != -1 || Mod(-16, 16) != 0 {
		t.Fatalf("floor div/mod wrong for -16")
	}
	if FloorDiv(15, 16) != 0 {
		t.Fatalf("floor div wrong for 15")
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	pos := tile.Pos{X: -22, Z: -14}
	a := generate(t, New(testParams()), pos)
	b := generate(t, New(testParams()), pos)
	if a.Digest() != b.Digest() {
		t.Fatalf("same seed produced different tiles")
	}

	p := testParams()
	p.Seed++
	c := generate(t, New(p), pos)
	if a.Digest() == c.Digest() {
		t.Fatalf("different seeds produced identical tiles")
	}
}

func TestGenerate_HeightBounds(t *testing.T) {
	p := testParams()
	d := generate(t, New(p), tile.Pos{X: 3, Z: -5, Level: 2})
	for x := 0; x < tile.Size; x++ {
		for z := 0; z < tile.Size; z++ {
			h := int(d.Height(x, z))
			if h < p.BaseHeight-p.Amplitude || h >= p.BaseHeight+p.Amplitude {
				t.Fatalf("height %d at (%d,%d) outside [%d,%d)", h, x, z, p.BaseHeight-p.Amplitude, p.BaseHeight+p.Amplitude)
			}
			if d.Light(x, z) != fullLight {
				t.Fatalf("light=%d", d.Light(x, z))
			}
			if d.Block(x, z) == 0 {
				t.Fatalf("empty block at (%d,%d)", x, z)
			}
		}
	}
}

func TestGenerate_CoarseLevelMatchesFineSamples(t *testing.T) {
	g := New(testParams())
	coarse := generate(t, g, tile.Pos{X: 1, Z: -1, Level: 1})
	// Coarse column (x, z) samples world block origin + 2*(x, z); the finer
	// tile at level 0 covering it is (2, -2) for the first half.
	fine := generate(t, g, tile.Pos{X: 2, Z: -2, Level: 0})
	for x := 0; x < tile.Size/2; x++ {
		for z := 0; z < tile.Size/2; z++ {
			if coarse.Height(x, z) != fine.Height(2*x, 2*z) {
				t.Fatalf("coarse (%d,%d)=%d fine (%d,%d)=%d", x, z, coarse.Height(x, z), 2*x, 2*z, fine.Height(2*x, 2*z))
			}
		}
	}
}

func TestGenerate_WaterBelowSeaLevel(t *testing.T) {
	g := New(testParams())
	for x := int64(-200); x < 200; x += 7 {
		c := g.Column(x, x/2)
		if c.Height < 60 && (c.WaterLight == 0 || c.WaterBiome != c.Biome) {
			t.Fatalf("column at %d below sea level has no water: %+v", x, c)
		}
		if c.Height >= 60 && c.WaterLight != 0 {
			t.Fatalf("dry column at %d has water: %+v", x, c)
		}
	}
}

func TestGenerate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := tile.New(tile.Pos{})
	err := d.Update(func(w *tile.Writer) error { return New(testParams()).Generate(ctx, d.Pos, w) })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}
