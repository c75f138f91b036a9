// Package concealment picks a hiding spot for an agent trying to get out of an
// observer's sight.
//
// Candidate spots come from a blue noise sampling of a square region around
// the agent. Each sample is mapped to the world, snapped to walkable ground,
// discarded if the observer can see it, and priced by its path cost. The
// cheapest remaining candidate wins; ties go to the earliest sample.
//
// The package knows nothing about scenes, navmeshes or raycasts. Those are
// supplied as Capabilities.
package concealment

import (
	"github.com/aukilabs/hideaway/geometry"
)

// FindBestConcealment runs a complete search around origin. An error is only
// returned for invalid arguments; a search that finds nothing returns a
// Result with Found set to false.
func FindBestConcealment(origin geometry.Pose, regionSize, cellSize float64, caps Capabilities, opts ...Option) (Result, error) {
	s, err := NewSearch(origin, regionSize, cellSize, caps, opts...)
	if err != nil {
		return Result{}, err
	}

	s.Step(0)
	return s.Result(), nil
}
