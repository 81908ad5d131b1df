package render

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"farplane.ai/internal/tile"
)

// Select picks the tiles to draw around camera (world block coordinates; Y is
// ignored). Tiles of maxLevel within radius tile spans of the camera are
// refined recursively: a tile at level L > 0 splits into its four children
// while its closest point is nearer than radius spans of level L-1, so level L
// fills the ring between radius spans of L-1 and of L. The result
// covers the selected area exactly once and is ordered by level, x, z.
func Select(camera mgl64.Vec3, radius float64, maxLevel int32) []tile.Pos {
	if radius <= 0 || maxLevel < 0 {
		return nil
	}
	span := spanOf(maxLevel)
	reach := radius * span
	cx := int32(math.Floor(camera.X() / span))
	cz := int32(math.Floor(camera.Z() / span))
	n := int32(math.Ceil(radius)) + 1

	var out []tile.Pos
	for x := cx - n; x <= cx+n; x++ {
		for z := cz - n; z <= cz+n; z++ {
			p := tile.Pos{X: x, Z: z, Level: maxLevel}
			if distance(camera, p) < reach {
				out = refine(out, camera, radius, p)
			}
		}
	}
	sortPositions(out)
	return out
}

func refine(out []tile.Pos, camera mgl64.Vec3, radius float64, p tile.Pos) []tile.Pos {
	if p.Level == 0 || distance(camera, p) >= radius*spanOf(p.Level-1) {
		return append(out, p)
	}
	for i := 0; i < 4; i++ {
		out = refine(out, camera, radius, p.Child(i))
	}
	return out
}

func spanOf(level int32) float64 {
	return float64(int64(tile.Size) << uint(level))
}

// distance is from camera to the closest point of p's footprint in the XZ plane.
func distance(camera mgl64.Vec3, p tile.Pos) float64 {
	span := spanOf(p.Level)
	minX, minZ := float64(p.MinBlockX()), float64(p.MinBlockZ())
	closest := mgl64.Vec2{
		mgl64.Clamp(camera.X(), minX, minX+span),
		mgl64.Clamp(camera.Z(), minZ, minZ+span),
	}
	return mgl64.Vec2{camera.X(), camera.Z()}.Sub(closest).Len()
}
