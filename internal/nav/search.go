package nav

import (
	"container/heap"
	"math"
	"sync/atomic"
	"time"

	"github.com/voxelforge/mobai/internal/mathx"
)

// searchNode is per-search scratch for one cell. Scratch lives in the
// search's own map, never on the shared grid, so concurrent searches
// on the same grid do not interfere.
type searchNode struct {
	idx       int32 // flat grid index
	cell      Cell
	gCost     float64
	hCost     float64
	fCost     float64
	parent    *searchNode
	closed    bool
	heapIndex int // -1 when not on the open heap
}

// openHeap is the indexed min-heap open set, ordered by fCost with
// lower hCost breaking ties.
type openHeap []*searchNode

func (h openHeap) Len() int { return len(h) }
func (h openHeap) Less(i, j int) bool {
	if h[i].fCost != h[j].fCost {
		return h[i].fCost < h[j].fCost
	}
	return h[i].hCost < h[j].hCost
}
func (h openHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *openHeap) Push(x any) {
	n := x.(*searchNode)
	n.heapIndex = len(*h)
	*h = append(*h, n)
}
func (h *openHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil // allow GC
	node.heapIndex = -1
	*h = old[:n-1]
	return node
}

// search carries the state of one running query.
type search struct {
	grid     *Grid
	req      Request
	nodes    map[int32]*searchNode
	open     openHeap
	explored int
	deadline time.Time
	maxNodes int
	stop     *atomic.Bool
	cancel   *atomic.Bool

	heuristic   func(a, b Cell) float64
	radiusCells int32
}

func newSearch(g *Grid, req Request, stop, cancel *atomic.Bool) *search {
	maxNodes := req.MaxNodes
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &search{
		grid:        g,
		req:         req,
		nodes:       make(map[int32]*searchNode, 256),
		deadline:    time.Now().Add(timeout),
		maxNodes:    maxNodes,
		stop:        stop,
		cancel:      cancel,
		heuristic:   heuristicFunc(req.Heuristic),
		radiusCells: radiusCells(req.AgentRadius, g.cellSize),
	}
}

// radiusCells converts an agent radius to extra clearance cells.
func radiusCells(radius, cellSize float64) int32 {
	if radius <= cellSize/2 {
		return 0
	}
	return int32(math.Ceil(radius/cellSize - 0.5))
}

// node returns (allocating if needed) the scratch for a cell.
func (s *search) node(c Cell) *searchNode {
	idx := s.grid.index(c)
	if n, ok := s.nodes[idx]; ok {
		return n
	}
	n := &searchNode{idx: idx, cell: c, heapIndex: -1, gCost: math.Inf(1)}
	s.nodes[idx] = n
	return n
}

// pushOpen inserts or repositions a node on the open heap.
func (s *search) pushOpen(n *searchNode) {
	if n.heapIndex >= 0 {
		heap.Fix(&s.open, n.heapIndex)
		return
	}
	heap.Push(&s.open, n)
}

// popOpen removes the best open node.
func (s *search) popOpen() *searchNode {
	return heap.Pop(&s.open).(*searchNode)
}

// overBudget checks node, wall-clock and stop/cancel budgets. The
// clock is only sampled every budgetCheckInterval expansions.
func (s *search) overBudget() (ResultStatus, bool) {
	if s.explored >= s.maxNodes {
		return StatusFailed, true
	}
	if s.explored%budgetCheckInterval == 0 {
		if s.cancel != nil && s.cancel.Load() {
			return StatusCancelled, true
		}
		if s.stop != nil && s.stop.Load() {
			return StatusCancelled, true
		}
		if time.Now().After(s.deadline) {
			return StatusTimeout, true
		}
	}
	return StatusPending, false
}

// walkableWithClearance checks a cell plus agent-radius clearance in
// the horizontal plane.
func (s *search) walkableWithClearance(c Cell) bool {
	if !s.grid.IsWalkable(c) {
		return false
	}
	r := s.radiusCells
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			if dx == 0 && dz == 0 {
				continue
			}
			if !s.grid.IsWalkable(Cell{c.X + dx, c.Y, c.Z + dz}) {
				return false
			}
		}
	}
	return true
}

// reconstruct walks parents back to the start and returns world
// waypoints in start-to-goal order.
func (s *search) reconstruct(n *searchNode) []Cell {
	cells := make([]Cell, 0, 32)
	for cur := n; cur != nil; cur = cur.parent {
		cells = append(cells, cur.cell)
	}
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	return cells
}

// finish builds a Result from a terminal search state. best may be
// nil when nothing was expanded.
func (s *search) finish(status ResultStatus, goalNode, best *searchNode, start Cell, began time.Time) Result {
	res := Result{
		Status:        status,
		NodesExplored: s.explored,
		ExecTime:      time.Since(began),
		GridVersion:   s.grid.Version(),
	}

	switch status {
	case StatusSuccess:
		res.Waypoints = s.grid.cellsToWaypoints(s.reconstruct(goalNode))
		res.PartialProgress = 1
	case StatusFailed, StatusTimeout:
		if s.req.AllowPartial && best != nil && best.cell != start {
			res.Status = StatusPartial
			res.Waypoints = s.grid.cellsToWaypoints(s.reconstruct(best))
			hStart := s.heuristic(start, s.grid.CellOf(s.req.Goal))
			if hStart > 0 {
				res.PartialProgress = 1 - best.hCost/hStart
				if res.PartialProgress < 0 {
					res.PartialProgress = 0
				}
			}
			if status == StatusTimeout {
				res.FailureReason = "timeout, partial path returned"
			} else {
				res.FailureReason = "node budget exhausted, partial path returned"
			}
		} else if status == StatusTimeout {
			res.FailureReason = "search timed out"
		} else {
			res.FailureReason = "no path: goal unreachable within budget"
		}
	case StatusCancelled:
		res.FailureReason = "cancelled"
	}
	return res
}

func (g *Grid) cellsToWaypoints(cells []Cell) []mathx.Vec3 {
	out := make([]mathx.Vec3, len(cells))
	for i, c := range cells {
		out[i] = g.PosOf(c)
	}
	return out
}

// heuristicFunc returns the cell-distance estimate for a heuristic
// choice. Distances are in cell units; traversal costs scale them.
func heuristicFunc(h Heuristic) func(a, b Cell) float64 {
	switch h {
	case HeuristicManhattan:
		return func(a, b Cell) float64 {
			return float64(abs32(a.X-b.X) + abs32(a.Y-b.Y) + abs32(a.Z-b.Z))
		}
	case HeuristicEuclidean:
		return func(a, b Cell) float64 {
			dx := float64(a.X - b.X)
			dy := float64(a.Y - b.Y)
			dz := float64(a.Z - b.Z)
			return math.Sqrt(dx*dx + dy*dy + dz*dz)
		}
	case HeuristicChebyshev:
		return func(a, b Cell) float64 {
			return float64(max32(abs32(a.X-b.X), max32(abs32(a.Y-b.Y), abs32(a.Z-b.Z))))
		}
	case HeuristicDiagonal:
		return func(a, b Cell) float64 {
			dx := float64(abs32(a.X - b.X))
			dz := float64(abs32(a.Z - b.Z))
			dy := float64(abs32(a.Y - b.Y))
			minD := math.Min(dx, dz)
			return (dx + dz) + (math.Sqrt2-2)*minD + dy
		}
	default: // Octile
		return func(a, b Cell) float64 {
			dx := float64(abs32(a.X - b.X))
			dz := float64(abs32(a.Z - b.Z))
			dy := float64(abs32(a.Y - b.Y))
			if dx < dz {
				dx, dz = dz, dx
			}
			return dx + (math.Sqrt2-1)*dz + dy
		}
	}
}

func abs32(x int32) int32 {
	if x < 0 {
		return -x
	}
	return x
}

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}
