// Package scenario loads a world description (observer, occluders, walkable
// area, agent) from YAML or JSON and turns it into the capabilities a
// concealment search runs against.
package scenario

import (
	"os"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hideaway/concealment"
	"github.com/aukilabs/hideaway/geometry"
	"github.com/aukilabs/hideaway/navigation"
	"github.com/aukilabs/hideaway/sampling"
	"github.com/aukilabs/hideaway/vision"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRegionSize = 10.0
	DefaultCellSize   = 1.0

	ErrTypeInvalidScenario = "invalid_scenario"
)

type Scenario struct {
	Search     Search          `yaml:"search"     json:"search"`
	Agent      Agent           `yaml:"agent"      json:"agent"`
	Observer   Observer        `yaml:"observer"   json:"observer"`
	Occluders  []geometry.AABB `yaml:"occluders"  json:"occluders"`
	Navigation Navigation      `yaml:"navigation" json:"navigation"`
}

type Search struct {
	RegionSize  float64 `yaml:"region_size" json:"region_size"`
	CellSize    float64 `yaml:"cell_size"   json:"cell_size"`
	Seed        *uint64 `yaml:"seed"        json:"seed,omitempty"`
	Unreachable string  `yaml:"unreachable" json:"unreachable"`
}

type Agent struct {
	Pose geometry.Pose `yaml:"pose" json:"pose"`

	// Yaw in degrees, replacing the pose rotation when set.
	Yaw *float64 `yaml:"yaw" json:"yaw,omitempty"`

	// Half size of the agent's body, used when checking whether the
	// observer can see the agent itself.
	HalfExtents geometry.Vector3 `yaml:"half_extents" json:"half_extents"`
}

func (a Agent) Bounds() geometry.AABB {
	return geometry.AABB{
		Min: geometry.Sub(a.Pose.Position, a.HalfExtents),
		Max: geometry.Add(a.Pose.Position, a.HalfExtents),
	}
}

type Observer struct {
	Pose        geometry.Pose `yaml:"pose"          json:"pose"`
	Yaw         *float64      `yaml:"yaw"           json:"yaw,omitempty"`
	FieldOfView float64       `yaml:"field_of_view" json:"field_of_view"`
	MaxDistance float64       `yaml:"max_distance"  json:"max_distance"`
}

type Navigation struct {
	Origin       geometry.Vector2 `yaml:"origin"        json:"origin"`
	Cols         int              `yaml:"cols"          json:"cols"`
	Rows         int              `yaml:"rows"          json:"rows"`
	CellSize     float64          `yaml:"cell_size"     json:"cell_size"`
	SnapDistance float64          `yaml:"snap_distance" json:"snap_distance"`
	Blocked      []geometry.AABB  `yaml:"blocked"       json:"blocked"`
}

// Option adjusts a decoded scenario before defaults are filled.
type Option func(*Scenario)

// WithDefaultSnapDistance sets the snap distance of documents that leave it
// unset. A distance of 0 keeps the package default.
func WithDefaultSnapDistance(d float64) Option {
	return func(s *Scenario) {
		if s.Navigation.SnapDistance == 0 {
			s.Navigation.SnapDistance = d
		}
	}
}

// Load reads a YAML scenario file.
func Load(path string, opts ...Option) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("reading scenario file failed").
			WithTag("path", path).
			Wrap(err)
	}

	s, err := Parse(b, opts...)
	if err != nil {
		return nil, errors.New("loading scenario failed").
			WithType(ErrTypeInvalidScenario).
			WithTag("path", path).
			Wrap(err)
	}
	return s, nil
}

// Parse decodes a YAML scenario, fills defaults and validates it. JSON is a
// subset of YAML, so JSON documents are accepted too.
func Parse(b []byte, opts ...Option) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, errors.New("decoding scenario failed").
			WithType(ErrTypeInvalidScenario).
			Wrap(err)
	}

	for _, opt := range opts {
		opt(&s)
	}
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetDefaults fills zero values with the package and vision defaults.
func (s *Scenario) SetDefaults() {
	if s.Agent.Yaw != nil {
		s.Agent.Pose.Rotation = geometry.FromYaw(*s.Agent.Yaw)
	}
	if s.Observer.Yaw != nil {
		s.Observer.Pose.Rotation = geometry.FromYaw(*s.Observer.Yaw)
	}
	if s.Search.RegionSize == 0 {
		s.Search.RegionSize = DefaultRegionSize
	}
	if s.Search.CellSize == 0 {
		s.Search.CellSize = DefaultCellSize
	}
	if s.Observer.FieldOfView == 0 {
		s.Observer.FieldOfView = vision.DefaultFieldOfView
	}
	if s.Observer.MaxDistance == 0 {
		s.Observer.MaxDistance = vision.DefaultMaxDistance
	}
	if s.Navigation.CellSize == 0 {
		s.Navigation.CellSize = 1
	}
	if s.Navigation.SnapDistance == 0 {
		s.Navigation.SnapDistance = navigation.DefaultSnapDistance
	}
}

func (s *Scenario) Validate() error {
	if !geometry.IsFinite(s.Search.RegionSize) || s.Search.RegionSize <= 0 {
		return errors.New("search region size must be positive").
			WithType(ErrTypeInvalidScenario).
			WithTag("region_size", s.Search.RegionSize)
	}
	if !geometry.IsFinite(s.Search.CellSize) || s.Search.CellSize <= 0 {
		return errors.New("search cell size must be positive").
			WithType(ErrTypeInvalidScenario).
			WithTag("cell_size", s.Search.CellSize)
	}
	if _, err := concealment.ParseUnreachablePolicy(s.Search.Unreachable); err != nil {
		return errors.New("invalid unreachable policy").
			WithType(ErrTypeInvalidScenario).
			Wrap(err)
	}
	if !s.Agent.Pose.IsFinite() || !s.Agent.HalfExtents.IsFinite() {
		return errors.New("agent pose and extents must be finite").
			WithType(ErrTypeInvalidScenario)
	}
	if !s.Observer.Pose.IsFinite() {
		return errors.New("observer pose must be finite").
			WithType(ErrTypeInvalidScenario)
	}
	if !geometry.IsFinite(s.Observer.FieldOfView) || s.Observer.FieldOfView < 0 || s.Observer.FieldOfView > 360 {
		return errors.New("observer field of view must be within [0, 360]").
			WithType(ErrTypeInvalidScenario).
			WithTag("field_of_view", s.Observer.FieldOfView)
	}
	if !geometry.IsFinite(s.Observer.MaxDistance) || s.Observer.MaxDistance < 0 {
		return errors.New("observer max distance must be finite and not negative").
			WithType(ErrTypeInvalidScenario).
			WithTag("max_distance", s.Observer.MaxDistance)
	}
	if s.Navigation.Cols <= 0 || s.Navigation.Rows <= 0 {
		return errors.New("navigation grid needs columns and rows").
			WithType(ErrTypeInvalidScenario).
			WithTag("cols", s.Navigation.Cols).
			WithTag("rows", s.Navigation.Rows)
	}
	if !geometry.IsFinite(s.Navigation.CellSize) || s.Navigation.CellSize <= 0 {
		return errors.New("navigation cell size must be positive").
			WithType(ErrTypeInvalidScenario).
			WithTag("cell_size", s.Navigation.CellSize)
	}
	if !s.Navigation.Origin.IsFinite() {
		return errors.New("navigation origin must be finite").
			WithType(ErrTypeInvalidScenario)
	}
	if !geometry.IsFinite(s.Navigation.SnapDistance) || s.Navigation.SnapDistance < 0 {
		return errors.New("navigation snap distance must be finite and not negative").
			WithType(ErrTypeInvalidScenario).
			WithTag("snap_distance", s.Navigation.SnapDistance)
	}
	return nil
}

// World is a scenario made ready for searching.
type World struct {
	Scenario *Scenario
	Observer *vision.Observer
	Grid     *navigation.Grid
	Policy   concealment.UnreachablePolicy
}

// Build creates the observer and the navigation grid. Occluders are not
// walkable, so they are blocked on the grid along with the explicit blocked
// boxes.
func (s *Scenario) Build() (*World, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	grid, err := navigation.NewGrid(s.Navigation.Origin, s.Navigation.Cols, s.Navigation.Rows, s.Navigation.CellSize)
	if err != nil {
		return nil, errors.New("building navigation grid failed").
			WithType(ErrTypeInvalidScenario).
			Wrap(err)
	}
	for _, box := range s.Occluders {
		grid.Block(box)
	}
	for _, box := range s.Navigation.Blocked {
		grid.Block(box)
	}

	observer := vision.NewObserver(s.Observer.Pose)
	observer.FieldOfView = s.Observer.FieldOfView
	observer.MaxDistance = s.Observer.MaxDistance
	observer.Occluders = s.Occluders

	policy, _ := concealment.ParseUnreachablePolicy(s.Search.Unreachable)

	return &World{
		Scenario: s,
		Observer: observer,
		Grid:     grid,
		Policy:   policy,
	}, nil
}

// Capabilities returns the search capabilities around the agent's current
// position.
func (w *World) Capabilities() concealment.Capabilities {
	return concealment.Capabilities{
		Navigate: w.Grid.Navigate(w.Scenario.Navigation.SnapDistance),
		Visible:  w.Observer.Visible(),
		PathCost: w.Grid.PathCost(w.Scenario.Agent.Pose.Position),
	}
}

// SearchOptions returns the options the scenario asks for: its seed and
// unreachable policy.
func (w *World) SearchOptions() []concealment.Option {
	opts := []concealment.Option{
		concealment.WithUnreachablePolicy(w.Policy),
	}
	if w.Scenario.Search.Seed != nil {
		opts = append(opts, concealment.WithSamplerOptions(sampling.WithSeed(*w.Scenario.Search.Seed)))
	}
	return opts
}

// AgentVisible reports whether the observer can currently see the agent.
func (w *World) AgentVisible() bool {
	return w.Observer.CanSeeTarget(w.Scenario.Agent.Pose.Position, w.Scenario.Agent.Bounds())
}

// FindConcealment runs a search around the agent. Extra options are applied
// after the scenario's own.
func (w *World) FindConcealment(opts ...concealment.Option) (concealment.Result, error) {
	return concealment.FindBestConcealment(
		w.Scenario.Agent.Pose,
		w.Scenario.Search.RegionSize,
		w.Scenario.Search.CellSize,
		w.Capabilities(),
		append(w.SearchOptions(), opts...)...,
	)
}
