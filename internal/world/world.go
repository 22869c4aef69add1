package world

import (
	"github.com/voxelforge/mobai/internal/mathx"
)

// BlockPos is an integer voxel coordinate.
type BlockPos struct {
	X, Y, Z int32
}

// Region is an axis-aligned box of voxels, inclusive on both corners.
type Region struct {
	Min, Max BlockPos
}

// Contains reports whether the block position lies inside the region.
func (r Region) Contains(p BlockPos) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y &&
		p.Z >= r.Min.Z && p.Z <= r.Max.Z
}

// Hit describes the first solid voxel intersected by a ray.
type Hit struct {
	Point    mathx.Vec3
	Normal   mathx.Vec3
	Distance float64
	Block    BlockPos
}

// Biome classifies terrain for sensory modifiers and spawn rules.
type Biome uint8

const (
	BiomePlains Biome = iota
	BiomeForest
	BiomeDesert
	BiomeMountain
	BiomeSwamp
	BiomeCave
)

func (b Biome) String() string {
	switch b {
	case BiomePlains:
		return "plains"
	case BiomeForest:
		return "forest"
	case BiomeDesert:
		return "desert"
	case BiomeMountain:
		return "mountain"
	case BiomeSwamp:
		return "swamp"
	case BiomeCave:
		return "cave"
	default:
		return "unknown"
	}
}

// World is the voxel store the AI core reads. The engine's chunk
// storage implements this; tests and the demo binary use BlockWorld.
type World interface {
	// IsBlockSolid reports whether the voxel at (x, y, z) is solid.
	IsBlockSolid(x, y, z int32) bool

	// RaycastFirstSolid walks the ray and returns the first solid
	// voxel hit within maxDist. ok is false when nothing is hit.
	RaycastFirstSolid(origin, dir mathx.Vec3, maxDist float64) (hit Hit, ok bool)

	// BiomeAt returns the biome at a world position.
	BiomeAt(p mathx.Vec3) Biome

	// SubscribeRegionDirty registers a callback invoked whenever a
	// region of voxels changes. Returns a subscription id for
	// UnsubscribeRegionDirty.
	SubscribeRegionDirty(fn func(Region)) int

	// UnsubscribeRegionDirty removes a dirty-region subscription.
	UnsubscribeRegionDirty(id int)
}

// EntityInfo is the read-only view of an entity the AI core sees.
type EntityInfo struct {
	ID        uint64
	Pos       mathx.Vec3
	Vel       mathx.Vec3
	EyeHeight float64
	Hostile   bool
	Tag       string
}

// EntityManager is the external entity registry. The coordinator
// notifies it on spawn/despawn; the sensory engine scans it.
type EntityManager interface {
	AddEntity(e EntityInfo)
	RemoveEntity(id uint64)
	GetEntity(id uint64) (EntityInfo, bool)

	// ForEachInRadius visits entities within radius of center.
	// Return false from fn to stop early.
	ForEachInRadius(center mathx.Vec3, radius float64, fn func(EntityInfo) bool)
}

// Physics is the external rigid-body layer. The agent writes a
// desired velocity and reads back the integrated position.
type Physics interface {
	SetDesiredVelocity(id uint64, v mathx.Vec3)
	Position(id uint64) (mathx.Vec3, bool)
}
