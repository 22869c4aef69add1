package nav

import (
	"math"

	"github.com/voxelforge/mobai/internal/mathx"
)

// SimplifyPath removes waypoints whose removal keeps every remaining
// segment within tol of the original polyline (Douglas-Peucker).
// Idempotent: simplifying a simplified path changes nothing.
func SimplifyPath(path []mathx.Vec3, tol float64) []mathx.Vec3 {
	if len(path) <= 2 {
		return append([]mathx.Vec3(nil), path...)
	}
	keep := make([]bool, len(path))
	keep[0], keep[len(path)-1] = true, true
	simplifySegment(path, 0, len(path)-1, tol, keep)

	out := make([]mathx.Vec3, 0, len(path))
	for i, k := range keep {
		if k {
			out = append(out, path[i])
		}
	}
	return out
}

func simplifySegment(path []mathx.Vec3, lo, hi int, tol float64, keep []bool) {
	if hi <= lo+1 {
		return
	}
	maxDist := 0.0
	maxIdx := -1
	for i := lo + 1; i < hi; i++ {
		d := pointSegmentDist(path[i], path[lo], path[hi])
		if d > maxDist {
			maxDist = d
			maxIdx = i
		}
	}
	if maxDist > tol {
		keep[maxIdx] = true
		simplifySegment(path, lo, maxIdx, tol, keep)
		simplifySegment(path, maxIdx, hi, tol, keep)
	}
}

func pointSegmentDist(p, a, b mathx.Vec3) float64 {
	ab := b.Sub(a)
	lenSq := ab.LenSq()
	if lenSq < 1e-12 {
		return p.Dist(a)
	}
	t := mathx.Clamp01(p.Sub(a).Dot(ab) / lenSq)
	return p.Dist(a.Add(ab.Scale(t)))
}

// SmoothPath rounds corners with Chaikin subdivision; s in (0, 0.5]
// controls how far cut points sit from the corner. Endpoints are
// preserved.
func SmoothPath(path []mathx.Vec3, s float64) []mathx.Vec3 {
	if len(path) <= 2 {
		return append([]mathx.Vec3(nil), path...)
	}
	s = mathx.Clamp(s, 0.05, 0.5)

	out := make([]mathx.Vec3, 0, len(path)*2)
	out = append(out, path[0])
	for i := 0; i < len(path)-1; i++ {
		a, b := path[i], path[i+1]
		out = append(out, a.Lerp(b, s), a.Lerp(b, 1-s))
	}
	out = append(out, path[len(path)-1])
	return out
}

// IsPositionWalkable reports whether an agent of the given radius
// can stand at p.
func (p *Pathfinder) IsPositionWalkable(pos mathx.Vec3, radius float64) bool {
	s := &search{
		grid:        p.grid,
		radiusCells: radiusCells(radius, p.grid.cellSize),
	}
	return s.walkableWithClearance(p.grid.CellOf(pos))
}

// NearestWalkable spirals outward from p up to searchRadius world
// units and returns the closest walkable position for the radius.
func (p *Pathfinder) NearestWalkable(pos mathx.Vec3, radius, searchRadius float64) (mathx.Vec3, bool) {
	s := &search{
		grid:        p.grid,
		radiusCells: radiusCells(radius, p.grid.cellSize),
	}
	center := p.grid.CellOf(pos)
	maxR := int32(math.Ceil(searchRadius / p.grid.cellSize))

	if s.walkableWithClearance(center) {
		return p.grid.PosOf(center), true
	}

	bestDist := math.Inf(1)
	var best Cell
	found := false
	for r := int32(1); r <= maxR; r++ {
		for dy := -r; dy <= r; dy++ {
			for dz := -r; dz <= r; dz++ {
				for dx := -r; dx <= r; dx++ {
					// Shell only: skip the interior already scanned.
					if abs32(dx) != r && abs32(dy) != r && abs32(dz) != r {
						continue
					}
					c := Cell{center.X + dx, center.Y + dy, center.Z + dz}
					if !s.walkableWithClearance(c) {
						continue
					}
					d := p.grid.PosOf(c).DistSq(pos)
					if d < bestDist {
						bestDist = d
						best = c
						found = true
					}
				}
			}
		}
		if found {
			return p.grid.PosOf(best), true
		}
	}
	return mathx.Vec3{}, false
}

// ValidatePath checks that every consecutive waypoint pair still has
// clear line of sight for the agent radius. Paths go stale when the
// world changes under them.
func (p *Pathfinder) ValidatePath(path []mathx.Vec3, radius float64) bool {
	if len(path) < 2 {
		return len(path) == 1 && p.IsPositionWalkable(path[0], radius)
	}
	s := &search{
		grid:        p.grid,
		radiusCells: radiusCells(radius, p.grid.cellSize),
	}
	for i := 0; i < len(path)-1; i++ {
		a := p.grid.CellOf(path[i])
		b := p.grid.CellOf(path[i+1])
		if !s.walkableWithClearance(a) || !s.lineOfSight(a, b) {
			return false
		}
	}
	return true
}
