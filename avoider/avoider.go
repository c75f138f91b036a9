// Package avoider keeps an agent out of an observer's sight. It polls the
// observer and, whenever the agent is seen, searches for the nearest point of
// concealment and sends the agent there.
package avoider

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/hideaway/concealment"
	"github.com/aukilabs/hideaway/geometry"
	"github.com/aukilabs/hideaway/navigation"
	"github.com/aukilabs/hideaway/scenario"
	"github.com/aukilabs/hideaway/vision"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultRetryDelay   = time.Second
)

// Agent is the body being hidden.
type Agent interface {
	Pose() geometry.Pose
	Bounds() geometry.AABB
}

// Mover sends the agent somewhere.
type Mover interface {
	SetDestination(ctx context.Context, destination geometry.Vector3) error
}

type Outcome int

const (
	// OutcomeUnseen means the observer cannot see the agent and nothing was
	// done.
	OutcomeUnseen Outcome = iota
	OutcomeMoved
	OutcomeNoCover
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMoved:
		return "moved"
	case OutcomeNoCover:
		return "no_cover"
	case OutcomeFailed:
		return "failed"
	default:
		return "unseen"
	}
}

type Avoider struct {
	// An identifier used in logs.
	Name string

	Agent    Agent
	Mover    Mover
	Observer *vision.Observer
	Grid     *navigation.Grid

	// The side of the square area searched around the agent.
	RegionSize float64

	// The minimum distance between two considered hiding spots.
	CellSize float64

	// How far a considered spot may be moved to reach walkable ground.
	SnapDistance float64

	// Extra options applied to every search.
	SearchOptions []concealment.Option

	// The wait between two checks.
	PollInterval time.Duration

	// The wait before searching again after finding no cover.
	RetryDelay time.Duration
}

// New creates an avoider for an agent living in the given world.
func New(name string, w *scenario.World, agent Agent, mover Mover) *Avoider {
	return &Avoider{
		Name:          name,
		Agent:         agent,
		Mover:         mover,
		Observer:      w.Observer,
		Grid:          w.Grid,
		RegionSize:    w.Scenario.Search.RegionSize,
		CellSize:      w.Scenario.Search.CellSize,
		SnapDistance:  w.Scenario.Navigation.SnapDistance,
		SearchOptions: w.SearchOptions(),
		PollInterval:  DefaultPollInterval,
		RetryDelay:    DefaultRetryDelay,
	}
}

// Run checks the observer until ctx is done. It always returns a non-nil
// error, the context's one on a normal stop.
func (a *Avoider) Run(ctx context.Context) error {
	pollInterval := a.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	retryDelay := a.RetryDelay
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	logs.WithTag("agent", a.Name).
		WithTag("poll_interval", pollInterval).
		WithTag("retry_delay", retryDelay).
		Info("avoider started")

	for {
		outcome, err := a.Tick(ctx)
		if err != nil && ctx.Err() == nil {
			logs.Warn(errors.New("avoider tick failed").
				WithTag("agent", a.Name).
				Wrap(err))
		}

		delay := pollInterval
		if outcome == OutcomeNoCover || outcome == OutcomeFailed {
			delay = retryDelay
		}

		select {
		case <-ctx.Done():
			logs.WithTag("agent", a.Name).Info("avoider stopped")
			return ctx.Err()

		case <-time.After(delay):
		}
	}
}

// Tick runs a single check: when the observer sees the agent, it searches for
// cover and moves the agent there.
func (a *Avoider) Tick(ctx context.Context) (Outcome, error) {
	outcome, err := a.tick(ctx)
	instrumentTick(outcome)
	return outcome, err
}

func (a *Avoider) tick(ctx context.Context) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return OutcomeFailed, err
	}

	pose := a.Agent.Pose()
	if !a.Observer.CanSeeTarget(pose.Position, a.Agent.Bounds()) {
		return OutcomeUnseen, nil
	}

	caps := concealment.Capabilities{
		Navigate: a.Grid.Navigate(a.SnapDistance),
		Visible:  a.Observer.Visible(),
		PathCost: a.Grid.PathCost(pose.Position),
	}

	res, err := concealment.FindBestConcealment(pose, a.RegionSize, a.CellSize, caps, a.SearchOptions...)
	if err != nil {
		return OutcomeFailed, errors.New("searching for cover failed").
			WithTag("agent", a.Name).
			Wrap(err)
	}

	if !res.Found {
		logs.WithTag("agent", a.Name).
			WithTag("evaluated", res.Evaluated).
			Debug("no cover found")
		return OutcomeNoCover, nil
	}

	if err := a.Mover.SetDestination(ctx, res.Position); err != nil {
		return OutcomeFailed, errors.New("setting destination failed").
			WithTag("agent", a.Name).
			WithTag("destination", res.Position).
			Wrap(err)
	}

	entry := logs.WithTag("agent", a.Name).
		WithTag("from", pose.Position).
		WithTag("destination", res.Position)
	if res.Candidates[0].Reachable() {
		entry = entry.WithTag("cost", res.Cost)
	}
	entry.Debug("moving to cover")
	return OutcomeMoved, nil
}
