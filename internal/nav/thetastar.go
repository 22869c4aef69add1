package nav

import (
	"math"
	"time"
)

// lineOfSight walks the discrete line between two cells and reports
// whether every intersected cell passes the agent-radius clearance
// check. 3D Bresenham with the dominant axis driving the error terms.
func (s *search) lineOfSight(a, b Cell) bool {
	dx := abs32(b.X - a.X)
	dy := abs32(b.Y - a.Y)
	dz := abs32(b.Z - a.Z)

	sx := sign32(b.X - a.X)
	sy := sign32(b.Y - a.Y)
	sz := sign32(b.Z - a.Z)

	x, y, z := a.X, a.Y, a.Z

	switch {
	case dx >= dy && dx >= dz: // X-dominant
		e1, e2 := dx/2, dx/2
		for x != b.X {
			x += sx
			e1 += dy
			if e1 >= dx {
				y += sy
				e1 -= dx
			}
			e2 += dz
			if e2 >= dx {
				z += sz
				e2 -= dx
			}
			if !s.walkableWithClearance(Cell{x, y, z}) {
				return false
			}
		}
	case dy >= dx && dy >= dz: // Y-dominant
		e1, e2 := dy/2, dy/2
		for y != b.Y {
			y += sy
			e1 += dx
			if e1 >= dy {
				x += sx
				e1 -= dy
			}
			e2 += dz
			if e2 >= dy {
				z += sz
				e2 -= dy
			}
			if !s.walkableWithClearance(Cell{x, y, z}) {
				return false
			}
		}
	default: // Z-dominant
		e1, e2 := dz/2, dz/2
		for z != b.Z {
			z += sz
			e1 += dx
			if e1 >= dz {
				x += sx
				e1 -= dz
			}
			e2 += dy
			if e2 >= dz {
				y += sy
				e2 -= dz
			}
			if !s.walkableWithClearance(Cell{x, y, z}) {
				return false
			}
		}
	}
	return true
}

func sign32(x int32) int32 {
	if x > 0 {
		return 1
	}
	if x < 0 {
		return -1
	}
	return 0
}

// euclid is the straight-line cell distance used for any-angle edges.
func euclid(a, b Cell) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	dz := float64(a.Z - b.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// runThetaStar is any-angle A*: when relaxing an edge current→n, if
// current's parent has line of sight to n, n inherits that parent
// directly, producing paths free of grid zigzag.
func (s *search) runThetaStar() Result {
	began := time.Now()
	start := s.grid.CellOf(s.req.Start)
	goal := s.grid.CellOf(s.req.Goal)

	if !s.grid.InBounds(start) || !s.grid.InBounds(goal) || !s.walkableWithClearance(goal) {
		return Result{
			Status:        StatusFailed,
			FailureReason: "start or goal unwalkable",
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

			// Path 2: inherit the grandparent on line of sight.
			if current.parent != nil && s.lineOfSight(current.parent.cell, n.cell) {
				g := current.parent.gCost + euclid(current.parent.cell, n.cell)*s.grid.CostAt(n.cell)
				if g < n.gCost {
					n.closed = false
					n.parent = current.parent
					n.gCost = g
					n.hCost = s.heuristic(n.cell, goal)
					n.fCost = n.gCost + n.hCost
					s.pushOpen(n)
				}
				continue
			}

			// Path 1: ordinary grid edge.
			g := current.gCost + nb.cost
			if g < n.gCost {
				n.closed = false
				n.parent = current
				n.gCost = g
				n.hCost = s.heuristic(n.cell, goal)
				n.fCost = n.gCost + n.hCost
				s.pushOpen(n)
			}
		}
	}

	return s.finish(StatusFailed, nil, best, start, began)
}

// runLazyThetaStar defers the line-of-sight test to expansion time:
// every relaxation optimistically assumes sight from the grandparent,
// and the assumption is repaired when the node is popped.
func (s *search) runLazyThetaStar() Result {
	began := time.Now()
	start := s.grid.CellOf(s.req.Start)
	goal := s.grid.CellOf(s.req.Goal)

	if !s.grid.InBounds(start) || !s.grid.InBounds(goal) || !s.walkableWithClearance(goal) {
		return Result{
			Status:        StatusFailed,
			FailureReason: "start or goal unwalkable",
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

		// Repair: if the assumed grandparent link has no sight,
		// fall back to the best visible grid neighbor.
		if current.parent != nil && !s.lineOfSight(current.parent.cell, current.cell) {
			s.repairParent(current, scratch)
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
			anchor := current
			if current.parent != nil {
				anchor = current.parent
			}
			g := anchor.gCost + euclid(anchor.cell, n.cell)*s.grid.CostAt(n.cell)
			if g < n.gCost {
				n.closed = false
				n.parent = anchor
				n.gCost = g
				n.hCost = s.heuristic(n.cell, goal)
				n.fCost = n.gCost + n.hCost
				s.pushOpen(n)
			}
		}
	}

	return s.finish(StatusFailed, nil, best, start, began)
}

// repairParent reroutes a node through its cheapest closed grid
// neighbor when the optimistic any-angle link proves blocked.
func (s *search) repairParent(n *searchNode, scratch []neighbor) {
	bestG := math.Inf(1)
	var bestParent *searchNode
	for _, nb := range s.neighbors(n.cell, scratch) {
		cand, ok := s.nodes[s.grid.index(nb.cell)]
		if !ok || !cand.closed {
			continue
		}
		g := cand.gCost + nb.cost
		if g < bestG {
			bestG = g
			bestParent = cand
		}
	}
	if bestParent != nil {
		n.parent = bestParent
		n.gCost = bestG
		n.fCost = n.gCost + n.hCost
	}
}
