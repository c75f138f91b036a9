package concealment

import (
	"math"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hideaway/geometry"
	"github.com/aukilabs/hideaway/sampling"
	"github.com/stretchr/testify/require"
)

// The search origin sits at the centre of a 10x10 region so world
// coordinates span [0,10] on X and Z.
var centre = geometry.Pose{Position: geometry.Vector3{X: 5, Y: 0, Z: 5}}

func navigateAnywhere(p geometry.Vector3) (geometry.Vector3, bool) {
	return p, true
}

func distanceFromOrigin(p geometry.Vector3) float64 {
	return math.Hypot(p.X, p.Z)
}

func halfVisible(p geometry.Vector3) bool {
	return p.X > 5
}

func TestFindBestConcealment(t *testing.T) {
	var events []CandidateEvent
	res, err := FindBestConcealment(centre, 10, 1, Capabilities{
		Navigate: navigateAnywhere,
		Visible:  halfVisible,
		PathCost: distanceFromOrigin,
	},
		WithSamplerOptions(sampling.WithSeed(11)),
		WithObserver(func(e CandidateEvent) {
			events = append(events, e)
		}),
	)
	require.NoError(t, err)
	require.True(t, res.Found)
	require.LessOrEqual(t, res.Position.X, 5.0)
	require.Equal(t, len(events), res.Evaluated)

	best := math.Inf(1)
	hidden := 0
	for _, e := range events {
		if e.World.X > 5 {
			require.Equal(t, OutcomeVisible, e.Outcome)
			continue
		}
		hidden++
		require.Equal(t, OutcomeCandidate, e.Outcome)
		best = math.Min(best, distanceFromOrigin(e.World))
	}
	require.Equal(t, hidden, len(res.Candidates))
	require.Equal(t, res.Evaluated-hidden, res.Rejections.Visible)
	require.InDelta(t, best, res.Cost, 1e-12)
	require.InDelta(t, best, distanceFromOrigin(res.Position), 1e-12)

	for i := 1; i < len(res.Candidates); i++ {
		require.LessOrEqual(t, res.Candidates[i-1].Cost, res.Candidates[i].Cost)
	}
}

func TestFindBestConcealmentSamplesAreCentredOnOrigin(t *testing.T) {
	var events []CandidateEvent
	_, err := FindBestConcealment(geometry.Pose{}, 10, 1, Capabilities{
		Navigate: navigateAnywhere,
		Visible:  func(geometry.Vector3) bool { return false },
		PathCost: distanceFromOrigin,
	},
		WithSamplerOptions(sampling.WithSeed(2)),
		WithObserver(func(e CandidateEvent) {
			events = append(events, e)
		}),
	)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	for _, e := range events {
		require.GreaterOrEqual(t, e.Sample.X, -5.0)
		require.LessOrEqual(t, e.Sample.X, 5.0)
		require.GreaterOrEqual(t, e.Sample.Y, -5.0)
		require.LessOrEqual(t, e.Sample.Y, 5.0)
		require.Equal(t, geometry.Vector3{X: e.Sample.X, Y: 0, Z: e.Sample.Y}, e.World)
	}
}

func TestFindBestConcealmentNothingHidden(t *testing.T) {
	res, err := FindBestConcealment(centre, 10, 1, Capabilities{
		Navigate: navigateAnywhere,
		Visible:  func(geometry.Vector3) bool { return true },
		PathCost: distanceFromOrigin,
	}, WithSamplerOptions(sampling.WithSeed(3)))
	require.NoError(t, err)
	require.False(t, res.Found)
	require.Empty(t, res.Candidates)
	require.Equal(t, res.Evaluated, res.Rejections.Visible)
}

func TestFindBestConcealmentNothingNavigable(t *testing.T) {
	pathCostCalled := false
	res, err := FindBestConcealment(centre, 10, 1, Capabilities{
		Navigate: func(geometry.Vector3) (geometry.Vector3, bool) { return geometry.Vector3{}, false },
		Visible: func(geometry.Vector3) bool {
			t.Fatal("visibility must not be checked for unnavigable samples")
			return false
		},
		PathCost: func(geometry.Vector3) float64 {
			pathCostCalled = true
			return 0
		},
	}, WithSamplerOptions(sampling.WithSeed(3)))
	require.NoError(t, err)
	require.False(t, res.Found)
	require.False(t, pathCostCalled)
	require.Equal(t, res.Evaluated, res.Rejections.NotNavigable)
}

func TestFindBestConcealmentUnreachable(t *testing.T) {
	caps := Capabilities{
		Navigate: navigateAnywhere,
		Visible:  halfVisible,
		PathCost: func(geometry.Vector3) float64 { return math.Inf(1) },
	}

	t.Run("include returns the first emitted candidate", func(t *testing.T) {
		var first *CandidateEvent
		res, err := FindBestConcealment(centre, 10, 1, caps,
			WithSamplerOptions(sampling.WithSeed(5)),
			WithObserver(func(e CandidateEvent) {
				if first == nil && e.Outcome == OutcomeCandidate {
					first = &e
				}
			}),
		)
		require.NoError(t, err)
		require.True(t, res.Found)
		require.NotNil(t, first)
		require.True(t, math.IsInf(res.Cost, 1))
		require.Equal(t, first.Snapped, res.Position)
		require.Equal(t, first.Order, res.Candidates[0].Order)
		require.False(t, res.Candidates[0].Reachable())
	})

	t.Run("exclude reports not found", func(t *testing.T) {
		res, err := FindBestConcealment(centre, 10, 1, caps,
			WithSamplerOptions(sampling.WithSeed(5)),
			WithUnreachablePolicy(ExcludeUnreachable),
		)
		require.NoError(t, err)
		require.False(t, res.Found)
		require.Positive(t, res.Rejections.Unreachable)
	})

	t.Run("reachable candidates outrank unreachable ones", func(t *testing.T) {
		mixed := caps
		mixed.PathCost = func(p geometry.Vector3) float64 {
			if p.Z > 5 {
				return math.Inf(1)
			}
			return 100 + distanceFromOrigin(p)
		}

		res, err := FindBestConcealment(centre, 10, 1, mixed, WithSamplerOptions(sampling.WithSeed(5)))
		require.NoError(t, err)
		require.True(t, res.Found)
		require.LessOrEqual(t, res.Position.Z, 5.0)
		require.True(t, res.Candidates[0].Reachable())
		require.False(t, res.Candidates[len(res.Candidates)-1].Reachable())
	})
}

func TestFindBestConcealmentInvalidCosts(t *testing.T) {
	res, err := FindBestConcealment(centre, 10, 1, Capabilities{
		Navigate: navigateAnywhere,
		Visible:  halfVisible,
		PathCost: func(p geometry.Vector3) float64 {
			if p.Z > 5 {
				return -1
			}
			return math.NaN()
		},
	},
		WithSamplerOptions(sampling.WithSeed(8)),
		WithUnreachablePolicy(ExcludeUnreachable),
	)
	require.NoError(t, err)
	require.False(t, res.Found)
}

func TestFindBestConcealmentTiesKeepEmissionOrder(t *testing.T) {
	res, err := FindBestConcealment(centre, 10, 1, Capabilities{
		Navigate: navigateAnywhere,
		Visible:  halfVisible,
		PathCost: func(geometry.Vector3) float64 { return 1 },
	}, WithSamplerOptions(sampling.WithSeed(13)))
	require.NoError(t, err)
	require.True(t, res.Found)

	for i := 1; i < len(res.Candidates); i++ {
		require.Less(t, res.Candidates[i-1].Order, res.Candidates[i].Order)
	}
}

func TestFindBestConcealmentIsRepeatable(t *testing.T) {
	caps := Capabilities{
		Navigate: navigateAnywhere,
		Visible:  halfVisible,
		PathCost: distanceFromOrigin,
	}

	a, err := FindBestConcealment(centre, 10, 1, caps, WithSamplerOptions(sampling.WithSeed(21)))
	require.NoError(t, err)
	b, err := FindBestConcealment(centre, 10, 1, caps, WithSamplerOptions(sampling.WithSeed(21)))
	require.NoError(t, err)

	require.Equal(t, a, b)
}

func TestFindBestConcealmentInvalidArguments(t *testing.T) {
	caps := Capabilities{
		Navigate: navigateAnywhere,
		Visible:  halfVisible,
		PathCost: distanceFromOrigin,
	}

	_, err := FindBestConcealment(centre, 0, 1, caps)
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeInvalidArgument))

	_, err = FindBestConcealment(centre, 10, math.NaN(), caps)
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeInvalidArgument))

	_, err = FindBestConcealment(centre, 10, 1, Capabilities{Navigate: navigateAnywhere})
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeInvalidArgument))
}

func TestSearchStep(t *testing.T) {
	caps := Capabilities{
		Navigate: navigateAnywhere,
		Visible:  halfVisible,
		PathCost: distanceFromOrigin,
	}

	s, err := NewSearch(centre, 10, 1, caps, WithSamplerOptions(sampling.WithSeed(34)))
	require.NoError(t, err)

	steps := 0
	for !s.Step(4) {
		steps++
		require.LessOrEqual(t, s.Evaluated(), 4*steps)
		require.Less(t, steps, 1000)
	}
	require.True(t, s.Done())
	require.True(t, s.Step(4))

	oneShot, err := FindBestConcealment(centre, 10, 1, caps, WithSamplerOptions(sampling.WithSeed(34)))
	require.NoError(t, err)
	require.Equal(t, oneShot, s.Result())
}

func TestSearchStepCompletesOnLastSample(t *testing.T) {
	caps := Capabilities{
		Navigate: navigateAnywhere,
		Visible:  halfVisible,
		PathCost: distanceFromOrigin,
	}

	full, err := FindBestConcealment(centre, 10, 1, caps, WithSamplerOptions(sampling.WithSeed(34)))
	require.NoError(t, err)

	s, err := NewSearch(centre, 10, 1, caps, WithSamplerOptions(sampling.WithSeed(34)))
	require.NoError(t, err)

	require.False(t, s.Step(full.Evaluated-1))
	require.False(t, s.Done())

	require.True(t, s.Step(1))
	require.True(t, s.Done())
	require.Equal(t, full, s.Result())
}

func TestSearchAbandon(t *testing.T) {
	caps := Capabilities{
		Navigate: navigateAnywhere,
		Visible:  halfVisible,
		PathCost: distanceFromOrigin,
	}

	s, err := NewSearch(centre, 10, 1, caps, WithSamplerOptions(sampling.WithSeed(34)))
	require.NoError(t, err)

	require.False(t, s.Step(3))
	s.Abandon()
	s.Abandon()

	require.True(t, s.Step(3))
	require.False(t, s.Done())
	require.Equal(t, 3, s.Evaluated())
	require.Equal(t, 3, s.Result().Evaluated)

	t.Run("complete search", func(t *testing.T) {
		s, err := NewSearch(centre, 10, 1, caps, WithSamplerOptions(sampling.WithSeed(34)))
		require.NoError(t, err)
		require.True(t, s.Step(0))

		s.Abandon()
		require.True(t, s.Done())
	})
}

func TestLocalFrameMapper(t *testing.T) {
	origin := geometry.Pose{
		Position: geometry.Vector3{X: 1, Y: 3, Z: 1},
		Rotation: geometry.FromYaw(90),
	}
	world := LocalFrameMapper(origin)(geometry.Vector2{X: 0, Y: 2})
	require.True(t, world.EqualWithEpsilon(geometry.Vector3{X: 3, Y: 3, Z: 1}, 1e-9), "%+v", world)
}

func TestParseUnreachablePolicy(t *testing.T) {
	p, err := ParseUnreachablePolicy("")
	require.NoError(t, err)
	require.Equal(t, IncludeUnreachable, p)

	p, err = ParseUnreachablePolicy("exclude")
	require.NoError(t, err)
	require.Equal(t, ExcludeUnreachable, p)
	require.Equal(t, "exclude", p.String())

	_, err = ParseUnreachablePolicy("sometimes")
	require.Error(t, err)
}

func TestOutcomeText(t *testing.T) {
	for _, o := range []Outcome{OutcomeCandidate, OutcomeNotNavigable, OutcomeVisible, OutcomeUnreachable} {
		b, err := o.MarshalText()
		require.NoError(t, err)

		var decoded Outcome
		require.NoError(t, decoded.UnmarshalText(b))
		require.Equal(t, o, decoded)
	}

	var o Outcome
	err := o.UnmarshalText([]byte("hidden"))
	require.True(t, errors.IsType(err, ErrTypeInvalidArgument))
}
