package avoider

import (
	"context"
	"sync"

	"github.com/aukilabs/hideaway/geometry"
)

// SimulatedAgent is an agent that reaches its destination as soon as it gets
// one. It implements both Agent and Mover.
type SimulatedAgent struct {
	mu           sync.Mutex
	pose         geometry.Pose
	halfExtents  geometry.Vector3
	destinations []geometry.Vector3
}

func NewSimulatedAgent(pose geometry.Pose, halfExtents geometry.Vector3) *SimulatedAgent {
	return &SimulatedAgent{
		pose:        pose,
		halfExtents: halfExtents,
	}
}

func (a *SimulatedAgent) Pose() geometry.Pose {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pose
}

func (a *SimulatedAgent) Bounds() geometry.AABB {
	a.mu.Lock()
	defer a.mu.Unlock()

	return geometry.AABB{
		Min: geometry.Sub(a.pose.Position, a.halfExtents),
		Max: geometry.Add(a.pose.Position, a.halfExtents),
	}
}

func (a *SimulatedAgent) SetDestination(ctx context.Context, destination geometry.Vector3) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pose.Position = destination
	a.destinations = append(a.destinations, destination)
	return nil
}

// Destinations returns every destination received so far.
func (a *SimulatedAgent) Destinations() []geometry.Vector3 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]geometry.Vector3(nil), a.destinations...)
}
