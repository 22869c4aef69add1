package nav

import (
	"time"

	"github.com/voxelforge/mobai/internal/mathx"
)

// PathType selects the traversal mode a path must respect.
type PathType uint8

const (
	PathGround PathType = iota
	PathAir
	PathWater
	PathClimbing
	PathBurrowing
	PathTeleport
)

func (t PathType) String() string {
	switch t {
	case PathGround:
		return "ground"
	case PathAir:
		return "air"
	case PathWater:
		return "water"
	case PathClimbing:
		return "climbing"
	case PathBurrowing:
		return "burrowing"
	case PathTeleport:
		return "teleport"
	default:
		return "unknown"
	}
}

// Algorithm selects the search driver.
type Algorithm uint8

const (
	AlgoAStar Algorithm = iota
	AlgoThetaStar
	AlgoLazyThetaStar
	AlgoJPS
	AlgoFlowField
)

func (a Algorithm) String() string {
	switch a {
	case AlgoAStar:
		return "astar"
	case AlgoThetaStar:
		return "theta"
	case AlgoLazyThetaStar:
		return "lazy-theta"
	case AlgoJPS:
		return "jps"
	case AlgoFlowField:
		return "flowfield"
	default:
		return "unknown"
	}
}

// Heuristic selects the distance estimate.
type Heuristic uint8

const (
	HeuristicOctile Heuristic = iota // default
	HeuristicManhattan
	HeuristicEuclidean
	HeuristicChebyshev
	HeuristicDiagonal
)

// ResultStatus is the terminal (or pending) state of a request.
type ResultStatus uint8

const (
	StatusPending ResultStatus = iota
	StatusSuccess
	StatusPartial
	StatusFailed
	StatusTimeout
	StatusCancelled
)

func (s ResultStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	case StatusFailed:
		return "failed"
	case StatusTimeout:
		return "timeout"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Request is an immutable pathfinding request. Zero values choose
// the defaults noted per field.
type Request struct {
	Start, Goal         mathx.Vec3
	AgentID             uint64
	Type                PathType
	Algorithm           Algorithm
	Heuristic           Heuristic
	MaxNodes            int           // 0 = DefaultMaxNodes
	Timeout             time.Duration // 0 = DefaultTimeout
	AllowPartial        bool
	UseDynamicObstacles bool
	AgentRadius         float64
	AgentHeight         float64
	Priority            int
}

// Result is what a completed (or cached) search produced.
type Result struct {
	RequestID       uint64
	Status          ResultStatus
	Waypoints       []mathx.Vec3
	NodesExplored   int
	ExecTime        time.Duration
	PartialProgress float64
	FailureReason   string
	GridVersion     uint64
	FromCache       bool
}

// Defaults applied when request fields are zero.
const (
	DefaultMaxNodes = 20000
	DefaultTimeout  = 500 * time.Millisecond

	// budgetCheckInterval is how many expansions pass between
	// wall-clock and stop-flag checks.
	budgetCheckInterval = 1024
)
