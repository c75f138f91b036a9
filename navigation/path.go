package navigation

import (
	"math"

	"github.com/aukilabs/hideaway/geometry"
	"github.com/zyedidia/generic/heap"
	"github.com/zyedidia/generic/mapset"
)

type pathNode struct {
	cell int
	f    float64
}

var dirs = [8][2]int{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

// FindPath returns the corners of a path from `from` to `to`, both included.
// It returns nil if either end is blocked or no path exists.
func (g *Grid) FindPath(from, to geometry.Vector3) []geometry.Vector3 {
	scx, scy := g.WorldToCell(from)
	gcx, gcy := g.WorldToCell(to)

	if g.IsBlocked(scx, scy) || g.IsBlocked(gcx, gcy) {
		return nil
	}

	key := func(cx, cy int) int { return cy*g.cols + cx }
	heuristic := func(cx, cy int) float64 {
		dx := math.Abs(float64(cx - gcx))
		dy := math.Abs(float64(cy - gcy))
		return dx + dy + (math.Sqrt2-2)*math.Min(dx, dy)
	}

	cost := make([]float64, g.cols*g.rows)
	for i := range cost {
		cost[i] = math.Inf(1)
	}
	parent := make([]int, g.cols*g.rows)

	start := key(scx, scy)
	goal := key(gcx, gcy)
	cost[start] = 0
	parent[start] = -1

	open := heap.New[pathNode](func(a, b pathNode) bool { return a.f < b.f })
	open.Push(pathNode{cell: start, f: heuristic(scx, scy)})
	closed := mapset.New[int]()

	for open.Size() > 0 {
		cur, _ := open.Pop()
		if cur.cell == goal {
			return g.corners(from, to, g.cellPath(parent, goal))
		}
		if closed.Has(cur.cell) {
			continue
		}
		closed.Put(cur.cell)

		cx, cy := cur.cell%g.cols, cur.cell/g.cols
		for _, d := range dirs {
			nx, ny := cx+d[0], cy+d[1]
			if g.IsBlocked(nx, ny) {
				continue
			}
			// Prevent diagonal corner-cutting through blocked cells.
			if d[0] != 0 && d[1] != 0 {
				if g.IsBlocked(cx+d[0], cy) || g.IsBlocked(cx, cy+d[1]) {
					continue
				}
			}
			nk := key(nx, ny)
			if closed.Has(nk) {
				continue
			}
			step := 1.0
			if d[0] != 0 && d[1] != 0 {
				step = math.Sqrt2
			}
			ng := cost[cur.cell] + step
			if ng >= cost[nk] {
				continue
			}
			cost[nk] = ng
			parent[nk] = cur.cell
			open.Push(pathNode{cell: nk, f: ng + heuristic(nx, ny)})
		}
	}
	return nil
}

func (g *Grid) cellPath(parent []int, goal int) []int {
	var cells []int
	for c := goal; c != -1; c = parent[c] {
		cells = append(cells, c)
	}
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	return cells
}

// corners turns a cell path into waypoints and drops every waypoint that can
// be skipped with a straight walkable line.
func (g *Grid) corners(from, to geometry.Vector3, cells []int) []geometry.Vector3 {
	if len(cells) < 2 {
		return []geometry.Vector3{from, to}
	}

	waypoints := make([]geometry.Vector3, 0, len(cells)+1)
	waypoints = append(waypoints, from)
	for _, c := range cells[1 : len(cells)-1] {
		waypoints = append(waypoints, g.CellToWorld(c%g.cols, c/g.cols, from.Y))
	}
	waypoints = append(waypoints, to)

	corners := []geometry.Vector3{from}
	anchor := 0
	for anchor < len(waypoints)-1 {
		next := anchor + 1
		for i := len(waypoints) - 1; i > next; i-- {
			if g.walkableLine(waypoints[anchor], waypoints[i]) {
				next = i
				break
			}
		}
		corners = append(corners, waypoints[next])
		anchor = next
	}
	return corners
}

// walkableLine samples the segment a -> b at a quarter of the cell size.
func (g *Grid) walkableLine(a, b geometry.Vector3) bool {
	length := math.Hypot(b.X-a.X, b.Z-a.Z)
	steps := int(math.Ceil(length/(g.cellSize/4))) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		p := geometry.Add(a, geometry.Mul(geometry.Sub(b, a), t))
		if !g.isWalkable(p) {
			return false
		}
	}
	return true
}
