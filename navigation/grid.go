// Package navigation is a small walkability grid on the XZ plane. It snaps
// points to walkable ground and measures path lengths, which is what a
// concealment search needs from a navmesh.
package navigation

import (
	"math"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hideaway/concealment"
	"github.com/aukilabs/hideaway/geometry"
	"github.com/boljen/go-bitmap"
)

const (
	// DefaultSnapDistance is how far a point may be moved to reach walkable
	// ground.
	DefaultSnapDistance = 5.0

	ErrTypeInvalidGrid = "invalid_grid"
)

// Grid is a walkability grid. Cell (0,0) has its minimum corner at Origin,
// X grows with columns and Z with rows.
type Grid struct {
	origin   geometry.Vector2
	cols     int
	rows     int
	cellSize float64
	blocked  bitmap.Bitmap
}

func NewGrid(origin geometry.Vector2, cols, rows int, cellSize float64) (*Grid, error) {
	if cols <= 0 || rows <= 0 {
		return nil, errors.New("grid dimensions must be positive").
			WithType(ErrTypeInvalidGrid).
			WithTag("cols", cols).
			WithTag("rows", rows)
	}
	if !geometry.IsFinite(cellSize) || cellSize <= 0 {
		return nil, errors.New("grid cell size must be positive").
			WithType(ErrTypeInvalidGrid).
			WithTag("cell_size", cellSize)
	}
	if !origin.IsFinite() {
		return nil, errors.New("grid origin is not finite").
			WithType(ErrTypeInvalidGrid)
	}

	return &Grid{
		origin:   origin,
		cols:     cols,
		rows:     rows,
		cellSize: cellSize,
		blocked:  bitmap.New(cols * rows),
	}, nil
}

func (g *Grid) Cols() int         { return g.cols }
func (g *Grid) Rows() int         { return g.rows }
func (g *Grid) CellSize() float64 { return g.cellSize }

// Block marks every cell overlapping the box's XZ footprint as not walkable.
func (g *Grid) Block(box geometry.AABB) {
	cMinX, cMinY := g.WorldToCell(geometry.Vector3{X: box.Min.X, Z: box.Min.Z})
	cMaxX, cMaxY := g.WorldToCell(geometry.Vector3{X: box.Max.X, Z: box.Max.Z})

	cMinX = max(0, cMinX)
	cMinY = max(0, cMinY)
	cMaxX = min(g.cols-1, cMaxX)
	cMaxY = min(g.rows-1, cMaxY)

	for cy := cMinY; cy <= cMaxY; cy++ {
		for cx := cMinX; cx <= cMaxX; cx++ {
			g.blocked.Set(cy*g.cols+cx, true)
		}
	}
}

// IsBlocked returns true if the cell at (cx, cy) is not walkable. Cells
// outside the grid are blocked.
func (g *Grid) IsBlocked(cx, cy int) bool {
	if cx < 0 || cy < 0 || cx >= g.cols || cy >= g.rows {
		return true
	}
	return g.blocked.Get(cy*g.cols + cx)
}

func (g *Grid) WorldToCell(p geometry.Vector3) (int, int) {
	return int(math.Floor((p.X - g.origin.X) / g.cellSize)),
		int(math.Floor((p.Z - g.origin.Y) / g.cellSize))
}

// CellToWorld returns the centre of a cell at height y.
func (g *Grid) CellToWorld(cx, cy int, y float64) geometry.Vector3 {
	return geometry.Vector3{
		X: g.origin.X + (float64(cx)+0.5)*g.cellSize,
		Y: y,
		Z: g.origin.Y + (float64(cy)+0.5)*g.cellSize,
	}
}

func (g *Grid) isWalkable(p geometry.Vector3) bool {
	cx, cy := g.WorldToCell(p)
	return !g.IsBlocked(cx, cy)
}

// Snap returns p if it lies on walkable ground, otherwise the centre of the
// nearest walkable cell within maxDistance on the XZ plane. The height of p
// is kept.
func (g *Grid) Snap(p geometry.Vector3, maxDistance float64) (geometry.Vector3, bool) {
	if !p.IsFinite() || math.IsNaN(maxDistance) {
		return geometry.Vector3{}, false
	}
	if g.isWalkable(p) {
		return p, true
	}

	cx, cy := g.WorldToCell(p)

	// Capped to the grid span so an infinite distance searches the whole grid.
	reach := int(math.Min(math.Ceil(maxDistance/g.cellSize), float64(g.cols+g.rows))) + 1

	best := geometry.Vector3{}
	bestDistance := math.Inf(1)

	for y := max(cy-reach, 0); y <= min(cy+reach, g.rows-1); y++ {
		for x := max(cx-reach, 0); x <= min(cx+reach, g.cols-1); x++ {
			if g.IsBlocked(x, y) {
				continue
			}
			centre := g.CellToWorld(x, y, p.Y)
			d := math.Hypot(centre.X-p.X, centre.Z-p.Z)
			if d <= maxDistance && d < bestDistance {
				best = centre
				bestDistance = d
			}
		}
	}

	return best, !math.IsInf(bestDistance, 1)
}

// Navigate adapts Snap to a concealment search.
func (g *Grid) Navigate(maxDistance float64) concealment.NavigateFunc {
	return func(p geometry.Vector3) (geometry.Vector3, bool) {
		return g.Snap(p, maxDistance)
	}
}

// PathCost returns a concealment path cost measured from `from`.
func (g *Grid) PathCost(from geometry.Vector3) concealment.PathCostFunc {
	return func(to geometry.Vector3) float64 {
		return g.PathLength(from, to)
	}
}

// PathLength returns the length of the path from `from` to `to`, or +Inf when
// there is none.
func (g *Grid) PathLength(from, to geometry.Vector3) float64 {
	corners := g.FindPath(from, to)
	if corners == nil {
		return math.Inf(1)
	}

	distance := 0.0
	current := corners[0]
	for _, next := range corners[1:] {
		distance += geometry.Distance(current, next)
		current = next
	}
	return distance
}
