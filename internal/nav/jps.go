package nav

import "time"

// runJPS is Jump Point Search: pruned A* for uniform-cost grids.
// The search runs in the XZ plane (ground level resolved per column
// by stepTo); volumetric path types fall back to plain A* since the
// grid symmetry argument does not hold for free 3D movement.
func (s *search) runJPS() Result {
	if s.req.Type == PathAir || s.req.Type == PathWater || s.req.Type == PathBurrowing {
		return s.runAStar()
	}

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

		for _, dir := range s.jpsDirections(current) {
			jp, ok := s.jump(current.cell, dir[0], dir[1], goal)
			if !ok {
				continue
			}
			n := s.node(jp)
			if n.closed {
				continue
			}
			g := current.gCost + euclid(current.cell, jp)
			if g < n.gCost {
				n.parent = current
				n.gCost = g
				n.hCost = s.heuristic(jp, goal)
				n.fCost = n.gCost + n.hCost
				s.pushOpen(n)
			}
		}
	}

	return s.finish(StatusFailed, nil, best, start, began)
}

// jpsDirections returns the pruned direction set for a node based on
// the direction it was reached from. The start expands all eight.
func (s *search) jpsDirections(n *searchNode) [][2]int32 {
	if n.parent == nil {
		return [][2]int32{
			{1, 0}, {-1, 0}, {0, 1}, {0, -1},
			{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
		}
	}

	dx := sign32(n.cell.X - n.parent.cell.X)
	dz := sign32(n.cell.Z - n.parent.cell.Z)
	dirs := make([][2]int32, 0, 5)

	if dx != 0 && dz != 0 { // diagonal travel
		dirs = append(dirs, [2]int32{dx, 0}, [2]int32{0, dz}, [2]int32{dx, dz})
		if !s.jpsWalkable(n.cell.X-dx, n.cell.Y, n.cell.Z) {
			dirs = append(dirs, [2]int32{-dx, dz})
		}
		if !s.jpsWalkable(n.cell.X, n.cell.Y, n.cell.Z-dz) {
			dirs = append(dirs, [2]int32{dx, -dz})
		}
	} else if dx != 0 { // horizontal travel
		dirs = append(dirs, [2]int32{dx, 0})
		if !s.jpsWalkable(n.cell.X, n.cell.Y, n.cell.Z+1) {
			dirs = append(dirs, [2]int32{dx, 1})
		}
		if !s.jpsWalkable(n.cell.X, n.cell.Y, n.cell.Z-1) {
			dirs = append(dirs, [2]int32{dx, -1})
		}
	} else { // vertical-in-plane travel
		dirs = append(dirs, [2]int32{0, dz})
		if !s.jpsWalkable(n.cell.X+1, n.cell.Y, n.cell.Z) {
			dirs = append(dirs, [2]int32{1, dz})
		}
		if !s.jpsWalkable(n.cell.X-1, n.cell.Y, n.cell.Z) {
			dirs = append(dirs, [2]int32{-1, dz})
		}
	}
	return dirs
}

// jpsWalkable resolves walkability for a column with ground stepping.
func (s *search) jpsWalkable(x, y, z int32) bool {
	_, ok := s.stepTo(Cell{x, y, z}, false)
	return ok
}

// jump scans from c in direction (dx, dz) until it finds the goal, a
// forced neighbor (a jump point) or a wall. Iterative for the
// straight cases; diagonal scans recurse into the two cardinals.
func (s *search) jump(c Cell, dx, dz int32, goal Cell) (Cell, bool) {
	x, y, z := c.X, c.Y, c.Z

	for {
		x += dx
		z += dz
		next, ok := s.stepTo(Cell{x, y, z}, false)
		if !ok {
			return Cell{}, false
		}
		y = next.Y

		if next.X == goal.X && next.Z == goal.Z && next.Y == goal.Y {
			return next, true
		}

		if dx != 0 && dz != 0 {
			// Forced neighbors on diagonal travel.
			if (!s.jpsWalkable(x-dx, y, z) && s.jpsWalkable(x-dx, y, z+dz)) ||
				(!s.jpsWalkable(x, y, z-dz) && s.jpsWalkable(x+dx, y, z-dz)) {
				return next, true
			}
			// A jump point on either cardinal makes this one too.
			if _, ok := s.jump(next, dx, 0, goal); ok {
				return next, true
			}
			if _, ok := s.jump(next, 0, dz, goal); ok {
				return next, true
			}
		} else if dx != 0 {
			if (!s.jpsWalkable(x, y, z+1) && s.jpsWalkable(x+dx, y, z+1)) ||
				(!s.jpsWalkable(x, y, z-1) && s.jpsWalkable(x+dx, y, z-1)) {
				return next, true
			}
		} else {
			if (!s.jpsWalkable(x+1, y, z) && s.jpsWalkable(x+1, y, z+dz)) ||
				(!s.jpsWalkable(x-1, y, z) && s.jpsWalkable(x-1, y, z+dz)) {
				return next, true
			}
		}

		// Scan budget: jumps count as exploration.
		s.explored++
		if s.explored >= s.maxNodes {
			return Cell{}, false
		}
	}
}
