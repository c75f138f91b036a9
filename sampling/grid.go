package sampling

import (
	"math"

	"github.com/aukilabs/hideaway/geometry"
	"github.com/boljen/go-bitmap"
)

// Background Grid
//
// A uniformly sub-divided acceleration grid over the sampling region. The
// particularities are:
//   - the cell side is radius/√2, so a cell's diagonal equals the radius and a
//     cell can never hold two accepted samples.
//   - occupancy is tracked in a separate bitmap. A sample placed at the origin
//     is a legitimate sample, so cell contents can't be used as the empty
//     marker.
//   - cells are stored row-major in a flat slice and hold an index into the
//     sampler's accepted samples.

// neighbourhood is the number of cells scanned on each side of a candidate's
// cell. Two cells of radius/√2 always cover a full radius.
const neighbourhood = 2

type backgroundGrid struct {
	cols     int
	rows     int
	cellSize float64
	occupied bitmap.Bitmap
	cells    []int
}

func newBackgroundGrid(width, height, cellSize float64) *backgroundGrid {
	cols := max(int(math.Ceil(width/cellSize)), 1)
	rows := max(int(math.Ceil(height/cellSize)), 1)

	return &backgroundGrid{
		cols:     cols,
		rows:     rows,
		cellSize: cellSize,
		occupied: bitmap.New(cols * rows),
		cells:    make([]int, cols*rows),
	}
}

// cellOf returns the cell coordinates of p. Points on the far edges of the
// region belong to the last row or column.
func (g *backgroundGrid) cellOf(p geometry.Vector2) (int, int) {
	cx := int(p.X / g.cellSize)
	cy := int(p.Y / g.cellSize)
	return min(max(cx, 0), g.cols-1), min(max(cy, 0), g.rows-1)
}

func (g *backgroundGrid) index(cx, cy int) int {
	return cy*g.cols + cx
}

func (g *backgroundGrid) insert(p geometry.Vector2, sampleIndex int) {
	i := g.index(g.cellOf(p))
	g.occupied.Set(i, true)
	g.cells[i] = sampleIndex
}

// eachNeighbour calls fn with the sample index of every occupied cell in the
// 5x5 block around p's cell. Iteration stops when fn returns false.
func (g *backgroundGrid) eachNeighbour(p geometry.Vector2, fn func(sampleIndex int) bool) {
	cx, cy := g.cellOf(p)

	xmin := max(cx-neighbourhood, 0)
	ymin := max(cy-neighbourhood, 0)
	xmax := min(cx+neighbourhood, g.cols-1)
	ymax := min(cy+neighbourhood, g.rows-1)

	for y := ymin; y <= ymax; y++ {
		for x := xmin; x <= xmax; x++ {
			i := g.index(x, y)
			if !g.occupied.Get(i) {
				continue
			}
			if !fn(g.cells[i]) {
				return
			}
		}
	}
}

func (g *backgroundGrid) occupancy() int {
	count := 0
	for i := range g.cells {
		if g.occupied.Get(i) {
			count++
		}
	}
	return count
}
