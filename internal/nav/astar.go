package nav

import (
	"math"
	"time"
)

// neighbor is one reachable adjacent cell and the cost to enter it.
type neighbor struct {
	cell Cell
	cost float64
}

// stepCosts in cell units.
const (
	costCardinal = 1.0
	costDiagonal = math.Sqrt2
	costVertical = 1.2 // climbing a deck is slightly dearer
)

// neighbors appends the reachable neighbors of c for the request's
// path type. Ground movement walks the XZ plane with one-cell step
// up/down; volumetric types (air, water, burrowing) move freely in
// all three axes. Diagonals never cut corners: both adjacent
// cardinals must be passable.
func (s *search) neighbors(c Cell, out []neighbor) []neighbor {
	out = out[:0]

	volumetric := s.req.Type == PathAir || s.req.Type == PathWater || s.req.Type == PathBurrowing

	type dirOK struct {
		cell Cell
		ok   bool
	}
	// Cardinal XZ directions: +X, -X, +Z, -Z.
	var card [4]dirOK
	dirs := [4][2]int32{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

	for i, d := range dirs {
		n, ok := s.stepTo(Cell{c.X + d[0], c.Y, c.Z + d[1]}, volumetric)
		card[i] = dirOK{n, ok}
		if ok {
			out = append(out, neighbor{n, costCardinal * s.grid.CostAt(n)})
		}
	}

	// XZ diagonals with anti-corner-cut.
	diags := [4][2]int32{
		{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
	}
	// pairs of cardinal indices guarding each diagonal:
	guards := [4][2]int{{0, 2}, {0, 3}, {1, 2}, {1, 3}}
	for i, d := range diags {
		g := guards[i]
		if !card[g[0]].ok || !card[g[1]].ok {
			continue
		}
		n, ok := s.stepTo(Cell{c.X + d[0], c.Y, c.Z + d[1]}, volumetric)
		if ok {
			out = append(out, neighbor{n, costDiagonal * s.grid.CostAt(n)})
		}
	}

	if volumetric {
		for _, dy := range [2]int32{1, -1} {
			n := Cell{c.X, c.Y + dy, c.Z}
			if s.walkableWithClearance(n) {
				out = append(out, neighbor{n, costVertical * s.grid.CostAt(n)})
			}
		}
	}
	return out
}

// stepTo resolves the walkable cell reached by moving horizontally
// into column (c.X, ·, c.Z). Ground agents may step one cell up or
// down; volumetric agents stay level (vertical moves are separate).
func (s *search) stepTo(c Cell, volumetric bool) (Cell, bool) {
	if s.walkableWithClearance(c) {
		return c, true
	}
	if volumetric {
		return Cell{}, false
	}
	up := Cell{c.X, c.Y + 1, c.Z}
	if s.walkableWithClearance(up) {
		return up, true
	}
	down := Cell{c.X, c.Y - 1, c.Z}
	if s.walkableWithClearance(down) {
		return down, true
	}
	return Cell{}, false
}

// runAStar is the classical driver: f = g + h over the indexed open
// heap, closed flags on scratch nodes, reopen on shorter g.
func (s *search) runAStar() Result {
	began := time.Now()
	start := s.grid.CellOf(s.req.Start)
	goal := s.grid.CellOf(s.req.Goal)

	if !s.grid.InBounds(start) || !s.grid.InBounds(goal) {
		return Result{
			Status:        StatusFailed,
			FailureReason: "start or goal outside the navigation grid",
			GridVersion:   s.grid.Version(),
			ExecTime:      time.Since(began),
		}
	}
	if !s.walkableWithClearance(goal) {
		return Result{
			Status:        StatusFailed,
			FailureReason: "goal unwalkable",
			GridVersion:   s.grid.Version(),
			ExecTime:      time.Since(began),
		}
	}

	startNode := s.node(start)
	startNode.gCost = 0
	startNode.hCost = s.heuristic(start, goal)
	startNode.fCost = startNode.hCost
	s.pushOpen(startNode)

	best := startNode
	scratch := make([]neighbor, 0, 10)

	for s.open.Len() > 0 {
		if status, over := s.overBudget(); over {
			return s.finish(status, nil, best, start, began)
		}

		current := s.popOpen()
		if current.closed {
			continue
		}
		current.closed = true
		s.explored++

		if current.cell == goal {
			return s.finish(StatusSuccess, current, current, start, began)
		}
		if current.hCost < best.hCost {
			best = current
		}

		scratch = s.neighbors(current.cell, scratch)
		for _, nb := range scratch {
			n := s.node(nb.cell)
			g := current.gCost + nb.cost
			if g >= n.gCost {
				continue
			}
			// Shorter route: reopen even if closed.
			n.closed = false
			n.parent = current
			n.gCost = g
			if n.hCost == 0 && n.cell != goal {
				n.hCost = s.heuristic(n.cell, goal)
			}
			n.fCost = n.gCost + n.hCost
			s.pushOpen(n)
		}
	}

	return s.finish(StatusFailed, nil, best, start, began)
}
