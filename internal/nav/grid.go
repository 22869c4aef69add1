// Package nav implements the navigation grid and the asynchronous
// pathfinding engine over it: A*, Theta*, Lazy Theta*, Jump Point
// Search and goal-shared flow fields, with request queueing, result
// polling and a version-checked path cache.
package nav

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/voxelforge/mobai/internal/mathx"
	"github.com/voxelforge/mobai/internal/world"
)

// Cell is an integer grid coordinate. Y is the vertical axis.
type Cell struct {
	X, Y, Z int32
}

// gridNode is the persistent per-cell state. Algorithm scratch
// (g/h/f, parent, set membership) lives in per-search maps so
// concurrent searches can share one grid.
type gridNode struct {
	walkable bool
	cost     float32
	height   uint8 // deck level for multi-deck geometry
}

// Grid is the voxel-aligned navigation lattice. Reads take the
// shared lock; rebuilds and region updates take the exclusive lock
// and bump the version counter, invalidating cached paths.
type Grid struct {
	mu       sync.RWMutex
	origin   mathx.Vec3
	cellSize float64
	w, h, d  int32
	nodes    []gridNode
	version  atomic.Uint64
}

// NewGrid creates a grid of w*h*d cells with every cell walkable at
// cost 1. origin is the world position of cell (0,0,0)'s min corner.
func NewGrid(origin mathx.Vec3, cellSize float64, w, h, d int32) *Grid {
	g := &Grid{
		origin:   origin,
		cellSize: cellSize,
		w:        w,
		h:        h,
		d:        d,
		nodes:    make([]gridNode, int(w)*int(h)*int(d)),
	}
	for i := range g.nodes {
		g.nodes[i] = gridNode{walkable: true, cost: 1}
	}
	g.version.Store(1)
	return g
}

// Dims returns the grid dimensions in cells.
func (g *Grid) Dims() (w, h, d int32) { return g.w, g.h, g.d }

// CellSize returns the edge length of a cell in world units.
func (g *Grid) CellSize() float64 { return g.cellSize }

// Origin returns the world position of the grid's min corner.
func (g *Grid) Origin() mathx.Vec3 { return g.origin }

// Version returns the current grid version. It increases on every
// rebuild or region update.
func (g *Grid) Version() uint64 { return g.version.Load() }

// InBounds reports whether the cell lies inside the grid.
func (g *Grid) InBounds(c Cell) bool {
	return c.X >= 0 && c.X < g.w && c.Y >= 0 && c.Y < g.h && c.Z >= 0 && c.Z < g.d
}

// index maps a cell to its flat slice offset. Caller checks bounds.
func (g *Grid) index(c Cell) int32 {
	return c.X + g.w*(c.Z+g.d*c.Y)
}

// cellFromIndex is the inverse of index.
func (g *Grid) cellFromIndex(i int32) Cell {
	x := i % g.w
	rest := i / g.w
	z := rest % g.d
	y := rest / g.d
	return Cell{X: x, Y: y, Z: z}
}

// CellOf maps a world position to its containing cell. The result
// may be out of bounds; callers check InBounds.
func (g *Grid) CellOf(p mathx.Vec3) Cell {
	rel := p.Sub(g.origin)
	return Cell{
		X: int32(math.Floor(rel.X / g.cellSize)),
		Y: int32(math.Floor(rel.Y / g.cellSize)),
		Z: int32(math.Floor(rel.Z / g.cellSize)),
	}
}

// PosOf maps a cell to the world position of its center.
func (g *Grid) PosOf(c Cell) mathx.Vec3 {
	half := g.cellSize / 2
	return g.origin.Add(mathx.Vec3{
		X: float64(c.X)*g.cellSize + half,
		Y: float64(c.Y)*g.cellSize + half,
		Z: float64(c.Z)*g.cellSize + half,
	})
}

// IsWalkable reports whether the cell is inside the grid and walkable.
func (g *Grid) IsWalkable(c Cell) bool {
	if !g.InBounds(c) {
		return false
	}
	g.mu.RLock()
	ok := g.nodes[g.index(c)].walkable
	g.mu.RUnlock()
	return ok
}

// CostAt returns the traversal cost of a cell (1 if out of bounds).
func (g *Grid) CostAt(c Cell) float64 {
	if !g.InBounds(c) {
		return 1
	}
	g.mu.RLock()
	cost := g.nodes[g.index(c)].cost
	g.mu.RUnlock()
	return float64(cost)
}

// HeightAt returns the deck level of a cell.
func (g *Grid) HeightAt(c Cell) uint8 {
	if !g.InBounds(c) {
		return 0
	}
	g.mu.RLock()
	h := g.nodes[g.index(c)].height
	g.mu.RUnlock()
	return h
}

// SetWalkable marks one cell and bumps the version.
func (g *Grid) SetWalkable(c Cell, walkable bool) {
	if !g.InBounds(c) {
		return
	}
	g.mu.Lock()
	g.nodes[g.index(c)].walkable = walkable
	g.mu.Unlock()
	g.version.Add(1)
}

// SetCost assigns a traversal cost to one cell and bumps the version.
func (g *Grid) SetCost(c Cell, cost float64) {
	if !g.InBounds(c) {
		return
	}
	g.mu.Lock()
	g.nodes[g.index(c)].cost = float32(cost)
	g.mu.Unlock()
	g.version.Add(1)
}

// BlockRegion marks every cell in [min, max] unwalkable in one
// version bump.
func (g *Grid) BlockRegion(min, max Cell) {
	g.mu.Lock()
	for y := min.Y; y <= max.Y; y++ {
		for z := min.Z; z <= max.Z; z++ {
			for x := min.X; x <= max.X; x++ {
				c := Cell{x, y, z}
				if g.InBounds(c) {
					g.nodes[g.index(c)].walkable = false
				}
			}
		}
	}
	g.mu.Unlock()
	g.version.Add(1)
}

// RebuildFromWorld derives walkability from the voxel world for the
// whole grid: a cell is walkable when the block under it is solid,
// the cell itself and bodyHeight-1 cells above it are clear. Costs
// stay as previously assigned. One version bump.
func (g *Grid) RebuildFromWorld(w world.World, bodyHeight int32) {
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rebuildLocked(w, bodyHeight, Cell{0, 0, 0}, Cell{g.w - 1, g.h - 1, g.d - 1})
	g.version.Add(1)
}

// UpdateRegion re-derives walkability for the cells covering the
// world-space box [minCorner, maxCorner] and bumps the version.
func (g *Grid) UpdateRegion(w world.World, bodyHeight int32, minCorner, maxCorner mathx.Vec3) {
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	lo := g.clampCell(g.CellOf(minCorner))
	hi := g.clampCell(g.CellOf(maxCorner))

	g.mu.Lock()
	defer g.mu.Unlock()
	g.rebuildLocked(w, bodyHeight, lo, hi)
	g.version.Add(1)
}

func (g *Grid) clampCell(c Cell) Cell {
	if c.X < 0 {
		c.X = 0
	}
	if c.X >= g.w {
		c.X = g.w - 1
	}
	if c.Y < 0 {
		c.Y = 0
	}
	if c.Y >= g.h {
		c.Y = g.h - 1
	}
	if c.Z < 0 {
		c.Z = 0
	}
	if c.Z >= g.d {
		c.Z = g.d - 1
	}
	return c
}

func (g *Grid) rebuildLocked(w world.World, bodyHeight int32, lo, hi Cell) {
	for y := lo.Y; y <= hi.Y; y++ {
		for z := lo.Z; z <= hi.Z; z++ {
			for x := lo.X; x <= hi.X; x++ {
				c := Cell{x, y, z}
				center := g.PosOf(c)
				bx := int32(math.Floor(center.X))
				by := int32(math.Floor(center.Y))
				bz := int32(math.Floor(center.Z))

				walkable := w.IsBlockSolid(bx, by-1, bz)
				for dy := int32(0); walkable && dy < bodyHeight; dy++ {
					if w.IsBlockSolid(bx, by+dy, bz) {
						walkable = false
					}
				}
				g.nodes[g.index(c)].walkable = walkable
				if g.nodes[g.index(c)].cost == 0 {
					g.nodes[g.index(c)].cost = 1
				}
			}
		}
	}
}

// Snapshot copies the walkable/cost state for serialization.
func (g *Grid) Snapshot() (walkable []bool, cost []float32, version uint64) {
	g.mu.RLock()
	walkable = make([]bool, len(g.nodes))
	cost = make([]float32, len(g.nodes))
	for i, n := range g.nodes {
		walkable[i] = n.walkable
		cost[i] = n.cost
	}
	version = g.version.Load()
	g.mu.RUnlock()
	return walkable, cost, version
}

// Restore replaces the grid body from a snapshot. Lengths must match
// the grid dimensions; extra data is ignored.
func (g *Grid) Restore(walkable []bool, cost []float32, version uint64) {
	g.mu.Lock()
	for i := range g.nodes {
		if i < len(walkable) {
			g.nodes[i].walkable = walkable[i]
		}
		if i < len(cost) {
			g.nodes[i].cost = cost[i]
		}
	}
	g.mu.Unlock()
	g.version.Store(version)
}
