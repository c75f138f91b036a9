// Package sampling generates blue noise point sets with Bridson's Poisson disc
// algorithm.
//
// A Sampler fills the rectangle [0,width]x[0,height] with points that are at
// least radius apart from each other. Points are produced on demand, one per
// TryNext call, so callers can spread the work over several frames or stop
// early. A sampler is single use: once exhausted it never produces points
// again.
package sampling

import (
	"iter"
	"math"
	"math/rand/v2"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/hideaway/geometry"
	"github.com/golang/geo/r2"
	"github.com/unixpickle/essentials"
)

const (
	// DefaultMaxAttempts is the number of candidates tried around an active
	// sample before it is retired.
	DefaultMaxAttempts = 30

	// MaxGridCells bounds the background grid allocation.
	MaxGridCells = 1 << 24

	ErrTypeInvalidArgument = "invalid_argument"
)

// RandomSource is a source of uniform values in [0,1). *rand.Rand from both
// math/rand and math/rand/v2 satisfy it.
type RandomSource interface {
	Float64() float64
}

type Option func(*Sampler)

// WithRand makes the sampler draw from the given source.
func WithRand(r RandomSource) Option {
	return func(s *Sampler) {
		if r != nil {
			s.rand = r
		}
	}
}

// WithSeed makes the sampler deterministic.
func WithSeed(seed uint64) Option {
	return func(s *Sampler) {
		s.rand = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithMaxAttempts overrides DefaultMaxAttempts. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(s *Sampler) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

type Sampler struct {
	width       float64
	height      float64
	radius      float64
	radius2     float64
	maxAttempts int
	region      r2.Rect
	rand        RandomSource

	grid    *backgroundGrid
	samples []geometry.Vector2
	active  []int
	started bool
	done    bool
}

// New creates a sampler whose samples lie in [0,width]x[0,height] and are at
// least radius apart.
func New(width, height, radius float64, options ...Option) (*Sampler, error) {
	if err := validateArgument("width", width); err != nil {
		return nil, err
	}
	if err := validateArgument("height", height); err != nil {
		return nil, err
	}
	if err := validateArgument("radius", radius); err != nil {
		return nil, err
	}

	cellSize := radius / math.Sqrt2
	if cells := math.Ceil(width/cellSize) * math.Ceil(height/cellSize); cells > MaxGridCells {
		return nil, errors.New("sampling grid is too large").
			WithType(ErrTypeInvalidArgument).
			WithTag("width", width).
			WithTag("height", height).
			WithTag("radius", radius).
			WithTag("cells", cells)
	}

	s := &Sampler{
		width:       width,
		height:      height,
		radius:      radius,
		radius2:     radius * radius,
		maxAttempts: DefaultMaxAttempts,
		region:      r2.RectFromPoints(r2.Point{X: 0, Y: 0}, r2.Point{X: width, Y: height}),
		grid:        newBackgroundGrid(width, height, cellSize),
	}
	for _, o := range options {
		o(s)
	}
	if s.rand == nil {
		s.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return s, nil
}

func validateArgument(name string, v float64) error {
	if !geometry.IsFinite(v) {
		return errors.New("sampler "+name+" is not finite").
			WithType(ErrTypeInvalidArgument).
			WithTag(name, v)
	}
	if v <= 0 {
		return errors.New("sampler "+name+" must be positive").
			WithType(ErrTypeInvalidArgument).
			WithTag(name, v)
	}
	return nil
}

func (s *Sampler) Width() float64  { return s.width }
func (s *Sampler) Height() float64 { return s.height }
func (s *Sampler) Radius() float64 { return s.radius }

// Region returns the rectangle samples are drawn from.
func (s *Sampler) Region() r2.Rect { return s.region }

// Len returns the number of samples produced so far.
func (s *Sampler) Len() int {
	return len(s.samples)
}

// Done reports whether the sampler is exhausted.
func (s *Sampler) Done() bool {
	return s.done
}

// TryNext returns the next sample. It returns false once no more samples can
// be placed, and keeps returning false afterwards.
func (s *Sampler) TryNext() (geometry.Vector2, bool) {
	if s.done {
		return geometry.Vector2{}, false
	}

	if !s.started {
		s.started = true
		first := geometry.Vector2{
			X: s.rand.Float64() * s.width,
			Y: s.rand.Float64() * s.height,
		}
		return s.addSample(first), true
	}

	for len(s.active) > 0 {
		i := s.pickActive()
		sample := s.samples[s.active[i]]

		for j := 0; j < s.maxAttempts; j++ {
			candidate := s.annulusCandidate(sample)
			if s.contains(candidate) && s.isFarEnough(candidate) {
				return s.addSample(candidate), true
			}
		}

		essentials.UnorderedDelete(&s.active, i)
	}

	s.done = true
	return geometry.Vector2{}, false
}

// Samples returns the remaining samples as a sequence. Breaking out of the
// range leaves the sampler where it stopped.
func (s *Sampler) Samples() iter.Seq[geometry.Vector2] {
	return func(yield func(geometry.Vector2) bool) {
		for {
			p, ok := s.TryNext()
			if !ok || !yield(p) {
				return
			}
		}
	}
}

// pickActive returns an index that is always within the active set, even if
// the random source returns 1 or more.
func (s *Sampler) pickActive() int {
	n := len(s.active)
	i := int(math.Floor(s.rand.Float64() * float64(n)))
	return min(max(i, 0), n-1)
}

// annulusCandidate draws a point uniformly by area from the annulus
// [radius, 2*radius] around center.
func (s *Sampler) annulusCandidate(center geometry.Vector2) geometry.Vector2 {
	angle := 2 * math.Pi * s.rand.Float64()
	r := math.Sqrt(s.rand.Float64()*3*s.radius2 + s.radius2)
	return center.Add(geometry.Vector2{
		X: r * math.Cos(angle),
		Y: r * math.Sin(angle),
	})
}

func (s *Sampler) contains(p geometry.Vector2) bool {
	return s.region.ContainsPoint(r2.Point{X: p.X, Y: p.Y})
}

func (s *Sampler) isFarEnough(p geometry.Vector2) bool {
	far := true
	s.grid.eachNeighbour(p, func(sampleIndex int) bool {
		if s.samples[sampleIndex].Sub(p).LengthSquared() < s.radius2 {
			far = false
		}
		return far
	})
	return far
}

func (s *Sampler) addSample(p geometry.Vector2) geometry.Vector2 {
	idx := len(s.samples)
	s.samples = append(s.samples, p)
	s.active = append(s.active, idx)
	s.grid.insert(p, idx)
	return p
}
