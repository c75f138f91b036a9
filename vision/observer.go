// Package vision answers line of sight questions for an observer with a
// limited field of view and sight range, against box shaped occluders.
package vision

import (
	"github.com/aukilabs/hideaway/concealment"
	"github.com/aukilabs/hideaway/geometry"
)

const (
	DefaultFieldOfView = 45.0
	DefaultMaxDistance = 10.0
)

type Observer struct {
	Pose geometry.Pose

	// The full angle of the arc of visibility, in degrees.
	FieldOfView float64

	MaxDistance float64
	Occluders   []geometry.AABB
}

func NewObserver(pose geometry.Pose) *Observer {
	return &Observer{
		Pose:        pose,
		FieldOfView: DefaultFieldOfView,
		MaxDistance: DefaultMaxDistance,
	}
}

// InArc reports whether point is within half the field of view from the
// observer's forward direction.
func (o *Observer) InArc(point geometry.Vector3) bool {
	direction := geometry.Sub(point, o.Pose.Position)
	return geometry.AngleBetween(o.Pose.Forward(), direction) < o.FieldOfView/2
}

// CanSee reports whether point is in the arc, within range and not hidden
// behind an occluder.
func (o *Observer) CanSee(point geometry.Vector3) bool {
	if !o.InArc(point) {
		return false
	}

	distance := geometry.Distance(o.Pose.Position, point)
	if distance > o.MaxDistance {
		return false
	}

	return !o.occluded(o.Pose.Position, point)
}

// CanSeeTarget is CanSee with the target's own volume ignored, so a target
// standing inside a box of its own is still visible.
func (o *Observer) CanSeeTarget(target geometry.Vector3, targetBounds geometry.AABB) bool {
	if !o.InArc(target) || geometry.Distance(o.Pose.Position, target) > o.MaxDistance {
		return false
	}

	ray := geometry.Ray{From: o.Pose.Position, To: target}
	targetT, hitTarget := targetBounds.IntersectSegment(ray)
	if !hitTarget {
		targetT = 1
	}

	for _, occluder := range o.Occluders {
		if t, hit := occluder.IntersectSegment(ray); hit && t < targetT {
			return false
		}
	}
	return true
}

func (o *Observer) occluded(from, to geometry.Vector3) bool {
	ray := geometry.Ray{From: from, To: to}
	for _, occluder := range o.Occluders {
		// A hit at t == 1 means the point lies on the occluder surface, which
		// is still in plain view.
		if t, hit := occluder.IntersectSegment(ray); hit && t < 1-1e-9 {
			return true
		}
	}
	return false
}

// Visible adapts the observer to a concealment search.
func (o *Observer) Visible() concealment.VisibleFunc {
	return o.CanSee
}
