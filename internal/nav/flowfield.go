package nav

import (
	"container/heap"
	"time"

	"github.com/voxelforge/mobai/internal/mathx"
)

// FlowField is a per-cell direction field toward one shared goal.
// Built once, it serves any number of agents heading to that goal,
// which is why the pathfinder switches to it when many requests pile
// up on the same goal cell.
type FlowField struct {
	goal        Cell
	version     uint64
	integration map[int32]float64 // cost-to-goal per reachable cell
	dirs        map[int32]mathx.Vec3
	grid        *Grid
}

// Goal returns the cell the field integrates toward.
func (f *FlowField) Goal() Cell { return f.goal }

// Version returns the grid version the field was built against.
func (f *FlowField) Version() uint64 { return f.version }

// ffNode is scratch for the integration (Dijkstra) pass.
type ffNode struct {
	idx       int32
	cell      Cell
	cost      float64
	heapIndex int
}

type ffHeap []*ffNode

func (h ffHeap) Len() int           { return len(h) }
func (h ffHeap) Less(i, j int) bool { return h[i].cost < h[j].cost }
func (h ffHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *ffHeap) Push(x any) {
	n := x.(*ffNode)
	n.heapIndex = len(*h)
	*h = append(*h, n)
}
func (h *ffHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return node
}

// BuildFlowField integrates traversal cost outward from goal over
// every reachable cell, then derives a unit direction per cell
// pointing down the cost gradient. maxCells bounds the flood.
func (s *search) buildFlowField(goal Cell, maxCells int) *FlowField {
	f := &FlowField{
		goal:        goal,
		version:     s.grid.Version(),
		integration: make(map[int32]float64, 1024),
		dirs:        make(map[int32]mathx.Vec3, 1024),
		grid:        s.grid,
	}

	open := &ffHeap{}
	heap.Init(open)
	seen := make(map[int32]*ffNode, 1024)

	gi := s.grid.index(goal)
	gn := &ffNode{idx: gi, cell: goal, cost: 0, heapIndex: -1}
	seen[gi] = gn
	heap.Push(open, gn)

	scratch := make([]neighbor, 0, 10)
	visited := 0

	for open.Len() > 0 && visited < maxCells {
		cur := heap.Pop(open).(*ffNode)
		if _, done := f.integration[cur.idx]; done {
			continue
		}
		f.integration[cur.idx] = cur.cost
		visited++

		scratch = s.neighbors(cur.cell, scratch)
		for _, nb := range scratch {
			idx := s.grid.index(nb.cell)
			if _, done := f.integration[idx]; done {
				continue
			}
			cost := cur.cost + nb.cost
			if n, ok := seen[idx]; ok {
				if cost < n.cost {
					n.cost = cost
					heap.Fix(open, n.heapIndex)
				}
				continue
			}
			n := &ffNode{idx: idx, cell: nb.cell, cost: cost, heapIndex: -1}
			seen[idx] = n
			heap.Push(open, n)
		}
	}

	// Derive the vector field: each cell points to its cheapest
	// integrated neighbor.
	for idx := range f.integration {
		cell := s.grid.cellFromIndex(idx)
		bestCost := f.integration[idx]
		bestCell := cell
		scratch = s.neighbors(cell, scratch)
		for _, nb := range scratch {
			c, ok := f.integration[s.grid.index(nb.cell)]
			if ok && c < bestCost {
				bestCost = c
				bestCell = nb.cell
			}
		}
		if bestCell != cell {
			f.dirs[idx] = s.grid.PosOf(bestCell).Sub(s.grid.PosOf(cell)).Normalize()
		}
	}
	return f
}

// Direction returns the flow vector at a world position. ok is false
// off the field.
func (f *FlowField) Direction(p mathx.Vec3) (mathx.Vec3, bool) {
	c := f.grid.CellOf(p)
	if !f.grid.InBounds(c) {
		return mathx.Vec3{}, false
	}
	d, ok := f.dirs[f.grid.index(c)]
	return d, ok
}

// trace follows the field from start to the goal cell, emitting one
// waypoint per cell. Gives up after maxSteps to survive field holes.
func (f *FlowField) trace(start Cell, maxSteps int) ([]Cell, bool) {
	cells := []Cell{start}
	cur := start
	for range maxSteps {
		if cur == f.goal {
			return cells, true
		}
		d, ok := f.dirs[f.grid.index(cur)]
		if !ok {
			return cells, false
		}
		pos := f.grid.PosOf(cur).Add(d.Scale(f.grid.cellSize))
		next := f.grid.CellOf(pos)
		if next == cur {
			return cells, false
		}
		cur = next
		cells = append(cells, cur)
	}
	return cells, false
}

// runFlowField resolves a request against a prebuilt or fresh field.
func (s *search) runFlowField(field *FlowField) Result {
	began := time.Now()
	start := s.grid.CellOf(s.req.Start)
	goal := s.grid.CellOf(s.req.Goal)

	if field == nil || field.version != s.grid.Version() || field.goal != goal {
		maxCells := s.maxNodes
		field = s.buildFlowField(goal, maxCells)
		s.explored = len(field.integration)
	}

	if !s.grid.InBounds(start) {
		return Result{
			Status:        StatusFailed,
			FailureReason: "start outside the navigation grid",
			GridVersion:   s.grid.Version(),
			ExecTime:      time.Since(began),
		}
	}

	maxSteps := int(s.grid.w) + int(s.grid.h) + int(s.grid.d)
	cells, reached := field.trace(start, maxSteps*2)
	res := Result{
		NodesExplored: s.explored,
		ExecTime:      time.Since(began),
		GridVersion:   s.grid.Version(),
	}
	if reached {
		res.Status = StatusSuccess
		res.Waypoints = s.grid.cellsToWaypoints(cells)
		res.PartialProgress = 1
		return res
	}
	if s.req.AllowPartial && len(cells) > 1 {
		res.Status = StatusPartial
		res.Waypoints = s.grid.cellsToWaypoints(cells)
		hs := s.heuristic(start, goal)
		if hs > 0 {
			res.PartialProgress = mathx.Clamp01(1 - s.heuristic(cells[len(cells)-1], goal)/hs)
		}
		res.FailureReason = "flow field does not reach the goal from start"
		return res
	}
	res.Status = StatusFailed
	res.FailureReason = "start not connected to the goal's flow field"
	return res
}
