package world

import (
	"math"
	"sync"

	"github.com/voxelforge/mobai/internal/mathx"
)

// BlockWorld is an in-memory voxel store backed by a sparse block
// set. It implements World and is used by the demo binary, the grid
// builder CLI and tests. Solid blocks are stored explicitly; every
// block at or below FloorY is implicitly solid so a flat walkable
// floor needs no memory.
type BlockWorld struct {
	mu     sync.RWMutex
	solid  map[BlockPos]struct{}
	biomes map[BlockPos]Biome // keyed by (X, 0, Z) column

	// FloorY: all blocks with Y <= FloorY are solid ground.
	floorY int32

	subMu   sync.Mutex
	subs    map[int]func(Region)
	nextSub int
}

// NewBlockWorld creates a world with an implicit solid floor at floorY.
func NewBlockWorld(floorY int32) *BlockWorld {
	return &BlockWorld{
		solid:  make(map[BlockPos]struct{}),
		biomes: make(map[BlockPos]Biome),
		floorY: floorY,
		subs:   make(map[int]func(Region)),
	}
}

// SetSolid adds or removes a solid block and notifies subscribers.
func (w *BlockWorld) SetSolid(x, y, z int32, solid bool) {
	p := BlockPos{x, y, z}

	w.mu.Lock()
	if solid {
		w.solid[p] = struct{}{}
	} else {
		delete(w.solid, p)
	}
	w.mu.Unlock()

	w.notifyDirty(Region{Min: p, Max: p})
}

// FillSolid marks every block in the region solid, then fires one
// dirty event for the whole region.
func (w *BlockWorld) FillSolid(r Region) {
	w.mu.Lock()
	for x := r.Min.X; x <= r.Max.X; x++ {
		for y := r.Min.Y; y <= r.Max.Y; y++ {
			for z := r.Min.Z; z <= r.Max.Z; z++ {
				w.solid[BlockPos{x, y, z}] = struct{}{}
			}
		}
	}
	w.mu.Unlock()

	w.notifyDirty(r)
}

// SetBiome assigns a biome to the column containing (x, z).
func (w *BlockWorld) SetBiome(x, z int32, b Biome) {
	w.mu.Lock()
	w.biomes[BlockPos{X: x, Z: z}] = b
	w.mu.Unlock()
}

// IsBlockSolid implements World.
func (w *BlockWorld) IsBlockSolid(x, y, z int32) bool {
	if y <= w.floorY {
		return true
	}
	w.mu.RLock()
	_, ok := w.solid[BlockPos{x, y, z}]
	w.mu.RUnlock()
	return ok
}

// BiomeAt implements World.
func (w *BlockWorld) BiomeAt(p mathx.Vec3) Biome {
	w.mu.RLock()
	b, ok := w.biomes[BlockPos{X: int32(math.Floor(p.X)), Z: int32(math.Floor(p.Z))}]
	w.mu.RUnlock()
	if !ok {
		return BiomePlains
	}
	return b
}

// RaycastFirstSolid implements World using an Amanatides-Woo voxel
// walk: step cell by cell along the ray, crossing whichever axis
// boundary comes first.
func (w *BlockWorld) RaycastFirstSolid(origin, dir mathx.Vec3, maxDist float64) (Hit, bool) {
	dir = dir.Normalize()
	if dir.IsZero() || maxDist <= 0 {
		return Hit{}, false
	}

	cx := int32(math.Floor(origin.X))
	cy := int32(math.Floor(origin.Y))
	cz := int32(math.Floor(origin.Z))

	stepX, tMaxX, tDeltaX := raySetup(origin.X, dir.X)
	stepY, tMaxY, tDeltaY := raySetup(origin.Y, dir.Y)
	stepZ, tMaxZ, tDeltaZ := raySetup(origin.Z, dir.Z)

	// The origin cell itself counts.
	if w.IsBlockSolid(cx, cy, cz) {
		return Hit{
			Point:    origin,
			Normal:   dir.Neg(),
			Distance: 0,
			Block:    BlockPos{cx, cy, cz},
		}, true
	}

	t := 0.0
	for t <= maxDist {
		var normal mathx.Vec3
		switch {
		case tMaxX <= tMaxY && tMaxX <= tMaxZ:
			cx += stepX
			t = tMaxX
			tMaxX += tDeltaX
			normal = mathx.Vec3{X: float64(-stepX)}
		case tMaxY <= tMaxZ:
			cy += stepY
			t = tMaxY
			tMaxY += tDeltaY
			normal = mathx.Vec3{Y: float64(-stepY)}
		default:
			cz += stepZ
			t = tMaxZ
			tMaxZ += tDeltaZ
			normal = mathx.Vec3{Z: float64(-stepZ)}
		}
		if t > maxDist {
			break
		}
		if w.IsBlockSolid(cx, cy, cz) {
			return Hit{
				Point:    origin.Add(dir.Scale(t)),
				Normal:   normal,
				Distance: t,
				Block:    BlockPos{cx, cy, cz},
			}, true
		}
	}
	return Hit{}, false
}

// raySetup returns the step direction, distance to the first cell
// boundary and distance between boundaries along one axis.
func raySetup(origin, dir float64) (step int32, tMax, tDelta float64) {
	if dir > 1e-12 {
		step = 1
		tMax = (math.Floor(origin) + 1 - origin) / dir
		tDelta = 1 / dir
	} else if dir < -1e-12 {
		step = -1
		tMax = (origin - math.Floor(origin)) / -dir
		tDelta = 1 / -dir
	} else {
		step = 0
		tMax = math.Inf(1)
		tDelta = math.Inf(1)
	}
	return step, tMax, tDelta
}

// SubscribeRegionDirty implements World.
func (w *BlockWorld) SubscribeRegionDirty(fn func(Region)) int {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	w.nextSub++
	id := w.nextSub
	w.subs[id] = fn
	return id
}

// UnsubscribeRegionDirty implements World.
func (w *BlockWorld) UnsubscribeRegionDirty(id int) {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	delete(w.subs, id)
}

func (w *BlockWorld) notifyDirty(r Region) {
	w.subMu.Lock()
	fns := make([]func(Region), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.subMu.Unlock()

	// Callbacks run outside the lock; a subscriber may re-enter.
	for _, fn := range fns {
		fn(r)
	}
}
