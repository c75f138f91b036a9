package scenario

import (
	"math"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hideaway/concealment"
	"github.com/aukilabs/hideaway/geometry"
	"github.com/aukilabs/hideaway/navigation"
	"github.com/aukilabs/hideaway/vision"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	s, err := Parse([]byte(`
navigation:
  cols: 4
  rows: 4
`))
	require.NoError(t, err)
	require.Equal(t, DefaultRegionSize, s.Search.RegionSize)
	require.Equal(t, DefaultCellSize, s.Search.CellSize)
	require.Equal(t, vision.DefaultFieldOfView, s.Observer.FieldOfView)
	require.Equal(t, vision.DefaultMaxDistance, s.Observer.MaxDistance)
	require.Equal(t, 1.0, s.Navigation.CellSize)
	require.Equal(t, navigation.DefaultSnapDistance, s.Navigation.SnapDistance)
	require.Nil(t, s.Search.Seed)
}

func TestParseJSON(t *testing.T) {
	s, err := Parse([]byte(`{
		"search": {"region_size": 6, "cell_size": 0.5, "seed": 3},
		"observer": {"pose": {"position": {"x": 1, "y": 0, "z": 2}}},
		"navigation": {"cols": 8, "rows": 8}
	}`))
	require.NoError(t, err)
	require.Equal(t, 6.0, s.Search.RegionSize)
	require.Equal(t, 0.5, s.Search.CellSize)
	require.Equal(t, uint64(3), *s.Search.Seed)
	require.Equal(t, geometry.Vector3{X: 1, Z: 2}, s.Observer.Pose.Position)
}

func TestParseYaw(t *testing.T) {
	s, err := Parse([]byte(`
observer:
  yaw: 90
navigation:
  cols: 4
  rows: 4
`))
	require.NoError(t, err)
	require.True(t, s.Observer.Pose.Forward().EqualWithEpsilon(geometry.Vector3{X: 1}, 1e-9))
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "malformed yaml",
			doc:  "navigation: [",
		},
		{
			name: "missing grid",
			doc:  "search: {region_size: 10}",
		},
		{
			name: "negative region",
			doc:  "search: {region_size: -1}\nnavigation: {cols: 2, rows: 2}",
		},
		{
			name: "unknown policy",
			doc:  "search: {unreachable: sometimes}\nnavigation: {cols: 2, rows: 2}",
		},
		{
			name: "field of view out of range",
			doc:  "observer: {field_of_view: 400}\nnavigation: {cols: 2, rows: 2}",
		},
		{
			name: "negative snap distance",
			doc:  "navigation: {cols: 2, rows: 2, snap_distance: -1}",
		},
		{
			name: "infinite snap distance",
			doc:  "navigation: {cols: 2, rows: 2, snap_distance: .inf}",
		},
		{
			name: "nan field of view",
			doc:  "observer: {field_of_view: .nan}\nnavigation: {cols: 2, rows: 2}",
		},
		{
			name: "nan max distance",
			doc:  "observer: {max_distance: .nan}\nnavigation: {cols: 2, rows: 2}",
		},
		{
			name: "infinite max distance",
			doc:  "observer: {max_distance: .inf}\nnavigation: {cols: 2, rows: 2}",
		},
		{
			name: "infinite navigation cell size",
			doc:  "navigation: {cols: 2, rows: 2, cell_size: .inf}",
		},
		{
			name: "negative navigation cell size",
			doc:  "navigation: {cols: 2, rows: 2, cell_size: -1}",
		},
		{
			name: "nan navigation origin",
			doc:  "navigation: {cols: 2, rows: 2, origin: {x: .nan}}",
		},
		{
			name: "infinite agent position",
			doc:  "agent: {pose: {position: {x: .inf}}}\nnavigation: {cols: 2, rows: 2}",
		},
		{
			name: "nan agent rotation",
			doc:  "agent: {pose: {rotation: {w: .nan}}}\nnavigation: {cols: 2, rows: 2}",
		},
		{
			name: "nan agent yaw",
			doc:  "agent: {yaw: .nan}\nnavigation: {cols: 2, rows: 2}",
		},
		{
			name: "infinite agent extents",
			doc:  "agent: {half_extents: {y: .inf}}\nnavigation: {cols: 2, rows: 2}",
		},
		{
			name: "nan observer position",
			doc:  "observer: {pose: {position: {z: .nan}}}\nnavigation: {cols: 2, rows: 2}",
		},
		{
			name: "infinite observer rotation",
			doc:  "observer: {pose: {rotation: {y: .inf, w: 1}}}\nnavigation: {cols: 2, rows: 2}",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.doc))
			require.Error(t, err)
			require.True(t, errors.IsType(err, ErrTypeInvalidScenario))
		})
	}
}

func TestParseDefaultSnapDistance(t *testing.T) {
	doc := []byte("navigation: {cols: 2, rows: 2}")

	s, err := Parse(doc, WithDefaultSnapDistance(2.5))
	require.NoError(t, err)
	require.Equal(t, 2.5, s.Navigation.SnapDistance)

	s, err = Parse(doc, WithDefaultSnapDistance(0))
	require.NoError(t, err)
	require.Equal(t, navigation.DefaultSnapDistance, s.Navigation.SnapDistance)

	s, err = Parse([]byte("navigation: {cols: 2, rows: 2, snap_distance: 1}"), WithDefaultSnapDistance(2.5))
	require.NoError(t, err)
	require.Equal(t, 1.0, s.Navigation.SnapDistance)

	// The courtyard sets its own snap distance.
	s, err = Load("testdata/courtyard.yaml", WithDefaultSnapDistance(3))
	require.NoError(t, err)
	require.Equal(t, 5.0, s.Navigation.SnapDistance)
}

func TestLoad(t *testing.T) {
	s, err := Load("testdata/courtyard.yaml")
	require.NoError(t, err)
	require.Equal(t, "exclude", s.Search.Unreachable)
	require.Len(t, s.Occluders, 1)
	require.Len(t, s.Navigation.Blocked, 1)

	_, err = Load("testdata/missing.yaml")
	require.Error(t, err)
}

func TestBuild(t *testing.T) {
	s, err := Load("testdata/courtyard.yaml")
	require.NoError(t, err)

	w, err := s.Build()
	require.NoError(t, err)
	require.Equal(t, concealment.ExcludeUnreachable, w.Policy)
	require.Equal(t, s.Occluders, w.Observer.Occluders)

	// Occluders and blocked boxes are both off the walkable area.
	require.True(t, w.Grid.IsBlocked(10, 12))
	require.True(t, w.Grid.IsBlocked(16, 4))
	require.False(t, w.Grid.IsBlocked(10, 10))

	require.True(t, w.AgentVisible())
}

func TestWorldFindConcealment(t *testing.T) {
	s, err := Load("testdata/courtyard.yaml")
	require.NoError(t, err)
	w, err := s.Build()
	require.NoError(t, err)

	events := 0
	res, err := w.FindConcealment(concealment.WithObserver(func(concealment.CandidateEvent) {
		events++
	}))
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, res.Evaluated, events)
	require.False(t, math.IsInf(res.Cost, 1))
	require.False(t, w.Observer.CanSee(res.Position))
	require.InDelta(t, w.Grid.PathLength(s.Agent.Pose.Position, res.Position), res.Cost, 1e-9)

	again, err := w.FindConcealment()
	require.NoError(t, err)
	require.Equal(t, res.Position, again.Position)
	require.Equal(t, res.Candidates, again.Candidates)
}
