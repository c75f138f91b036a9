package concealment

import (
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hideaway/geometry"
)

// MapToWorldFunc converts a sample in the search frame into a world position.
type MapToWorldFunc func(geometry.Vector2) geometry.Vector3

// NavigateFunc returns the walkable position closest to the given point, or
// false when no walkable surface is within its snap tolerance.
type NavigateFunc func(geometry.Vector3) (geometry.Vector3, bool)

// VisibleFunc reports whether the observer has a line of sight to the point.
// Range and field of view are the function's concern.
type VisibleFunc func(geometry.Vector3) bool

// PathCostFunc returns the length of the route from the searcher to the point,
// or +Inf when there is none. Costs must not be negative.
type PathCostFunc func(geometry.Vector3) float64

// Capabilities groups the functions a search is evaluated against.
// MapToWorld is optional and defaults to LocalFrameMapper of the search
// origin.
type Capabilities struct {
	MapToWorld MapToWorldFunc
	Navigate   NavigateFunc
	Visible    VisibleFunc
	PathCost   PathCostFunc
}

func (c Capabilities) validate() error {
	var missing []string
	if c.Navigate == nil {
		missing = append(missing, "navigate")
	}
	if c.Visible == nil {
		missing = append(missing, "visible")
	}
	if c.PathCost == nil {
		missing = append(missing, "path_cost")
	}
	if len(missing) != 0 {
		return errors.New("missing search capabilities").
			WithType(ErrTypeInvalidArgument).
			WithTag("missing", strings.Join(missing, ","))
	}
	return nil
}

// LocalFrameMapper maps a sample (x, y) to the point (x, 0, y) in the origin's
// local space. The height is always the origin's own elevation.
func LocalFrameMapper(origin geometry.Pose) MapToWorldFunc {
	return func(p geometry.Vector2) geometry.Vector3 {
		world := origin.TransformPoint(geometry.Vector3{X: p.X, Z: p.Y})
		world.Y = origin.Position.Y
		return world
	}
}
