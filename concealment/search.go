package concealment

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/hideaway/geometry"
	"github.com/aukilabs/hideaway/sampling"
)

const ErrTypeInvalidArgument = sampling.ErrTypeInvalidArgument

// UnreachablePolicy decides what happens to candidates that are navigable but
// have no path from the searcher.
type UnreachablePolicy int

const (
	// IncludeUnreachable keeps infinite cost candidates. They rank after every
	// reachable candidate and are returned when nothing else survives.
	IncludeUnreachable UnreachablePolicy = iota

	// ExcludeUnreachable drops infinite cost candidates.
	ExcludeUnreachable
)

func (p UnreachablePolicy) String() string {
	switch p {
	case ExcludeUnreachable:
		return "exclude"
	default:
		return "include"
	}
}

func ParseUnreachablePolicy(s string) (UnreachablePolicy, error) {
	switch s {
	case "", "include":
		return IncludeUnreachable, nil
	case "exclude":
		return ExcludeUnreachable, nil
	default:
		return IncludeUnreachable, errors.New("unknown unreachable policy").
			WithType(ErrTypeInvalidArgument).
			WithTag("policy", s)
	}
}

// Outcome is what happened to a single evaluated sample.
type Outcome int

const (
	OutcomeCandidate Outcome = iota
	OutcomeNotNavigable
	OutcomeVisible
	OutcomeUnreachable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotNavigable:
		return "not_navigable"
	case OutcomeVisible:
		return "visible"
	case OutcomeUnreachable:
		return "unreachable"
	default:
		return "candidate"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "candidate":
		*o = OutcomeCandidate
	case "not_navigable":
		*o = OutcomeNotNavigable
	case "visible":
		*o = OutcomeVisible
	case "unreachable":
		*o = OutcomeUnreachable
	default:
		return errors.New("unknown outcome").
			WithType(ErrTypeInvalidArgument).
			WithTag("outcome", string(b))
	}
	return nil
}

// Candidate is a hiding spot that passed the navigability and visibility
// filters. Order is the emission order of the sample it came from.
type Candidate struct {
	Position geometry.Vector3
	Cost     float64
	Order    int
}

func (c Candidate) Reachable() bool {
	return !math.IsInf(c.Cost, 1)
}

// CandidateEvent describes the evaluation of one sample.
type CandidateEvent struct {
	Order   int
	Sample  geometry.Vector2
	World   geometry.Vector3
	Snapped geometry.Vector3
	Outcome Outcome
	Cost    float64
}

type Rejections struct {
	NotNavigable int
	Visible      int
	Unreachable  int
}

// Result is the outcome of a search. Found is false when no sample passed
// every filter; that is not an error.
type Result struct {
	Found      bool
	Position   geometry.Vector3
	Cost       float64
	Evaluated  int
	Rejections Rejections

	// Candidates sorted by ascending cost, ties in emission order.
	Candidates []Candidate
}

type Option func(*options)

type options struct {
	policy         UnreachablePolicy
	samplerOptions []sampling.Option
	observer       func(CandidateEvent)
	searchID       string
}

func WithUnreachablePolicy(p UnreachablePolicy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithSamplerOptions forwards options to the underlying sampler, typically a
// seed.
func WithSamplerOptions(opts ...sampling.Option) Option {
	return func(o *options) {
		o.samplerOptions = append(o.samplerOptions, opts...)
	}
}

// WithObserver registers a function called once per evaluated sample.
func WithObserver(fn func(CandidateEvent)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithSearchID tags the search logs with id.
func WithSearchID(id string) Option {
	return func(o *options) {
		o.searchID = id
	}
}

// Search is an incremental concealment search. It evaluates samples as Step
// is called, which lets callers bound the work done per frame.
//
// A Search is not safe for concurrent use.
type Search struct {
	sampler    *sampling.Sampler
	half       float64
	caps       Capabilities
	options    options
	candidates []Candidate
	evaluated  int
	rejections Rejections
	start      time.Time
	done       bool
	abandoned  bool

	// The next sample, drawn ahead of its evaluation.
	pending    geometry.Vector2
	hasPending bool
}

// NewSearch prepares a search over a regionSize x regionSize square centred on
// origin, with samples at least cellSize apart.
func NewSearch(origin geometry.Pose, regionSize, cellSize float64, caps Capabilities, opts ...Option) (*Search, error) {
	if err := caps.validate(); err != nil {
		return nil, err
	}
	if caps.MapToWorld == nil {
		caps.MapToWorld = LocalFrameMapper(origin)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	sampler, err := sampling.New(regionSize, regionSize, cellSize, o.samplerOptions...)
	if err != nil {
		return nil, errors.New("creating concealment search failed").
			WithType(ErrTypeInvalidArgument).
			Wrap(err)
	}

	return &Search{
		sampler: sampler,
		half:    regionSize / 2,
		caps:    caps,
		options: o,
	}, nil
}

// Step evaluates up to budget samples. A budget of 0 or less evaluates every
// remaining sample. It returns true once nothing is left to evaluate, either
// because the search is complete or because it was abandoned.
func (s *Search) Step(budget int) bool {
	if s.done || s.abandoned {
		return true
	}
	if s.start.IsZero() {
		s.start = time.Now()
	}

	for n := 0; budget <= 0 || n < budget; n++ {
		p, ok := s.next()
		if !ok {
			s.finish()
			return true
		}
		s.evaluate(p)
	}

	// A budget ending on the last sample completes the search now rather
	// than on the next Step.
	if !s.peek() {
		s.finish()
		return true
	}
	return false
}

func (s *Search) Done() bool {
	return s.done
}

// Abandon ends a search before every sample is evaluated. It is recorded as
// incomplete and later Steps evaluate nothing. Abandoning a complete search
// does nothing.
func (s *Search) Abandon() {
	if s.done || s.abandoned {
		return
	}
	s.abandoned = true
	s.record("incomplete", "concealment search abandoned")
}

func (s *Search) next() (geometry.Vector2, bool) {
	if s.hasPending {
		s.hasPending = false
		return s.pending, true
	}
	return s.sampler.TryNext()
}

func (s *Search) peek() bool {
	if !s.hasPending {
		s.pending, s.hasPending = s.sampler.TryNext()
	}
	return s.hasPending
}

// Evaluated returns the number of samples evaluated so far.
func (s *Search) Evaluated() int {
	return s.evaluated
}

// Result returns the best candidate among the samples evaluated so far.
func (s *Search) Result() Result {
	sorted := slices.Clone(s.candidates)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		return cmp.Compare(a.Cost, b.Cost)
	})

	res := Result{
		Evaluated:  s.evaluated,
		Rejections: s.rejections,
		Candidates: sorted,
	}
	if len(sorted) != 0 {
		res.Found = true
		res.Position = sorted[0].Position
		res.Cost = sorted[0].Cost
	}
	return res
}

func (s *Search) evaluate(p geometry.Vector2) {
	event := CandidateEvent{
		Order:  s.evaluated,
		Sample: geometry.Vector2{X: p.X - s.half, Y: p.Y - s.half},
		Cost:   math.Inf(1),
	}
	s.evaluated++

	event.World = s.caps.MapToWorld(event.Sample)

	snapped, ok := s.caps.Navigate(event.World)
	if !ok {
		s.rejections.NotNavigable++
		s.emit(event, OutcomeNotNavigable)
		return
	}
	event.Snapped = snapped

	if s.caps.Visible(snapped) {
		s.rejections.Visible++
		s.emit(event, OutcomeVisible)
		return
	}

	cost := s.caps.PathCost(snapped)
	if math.IsNaN(cost) || cost < 0 {
		cost = math.Inf(1)
	}
	event.Cost = cost

	if math.IsInf(cost, 1) && s.options.policy == ExcludeUnreachable {
		s.rejections.Unreachable++
		s.emit(event, OutcomeUnreachable)
		return
	}

	s.candidates = append(s.candidates, Candidate{
		Position: snapped,
		Cost:     cost,
		Order:    event.Order,
	})
	s.emit(event, OutcomeCandidate)
}

func (s *Search) emit(e CandidateEvent, o Outcome) {
	e.Outcome = o
	instrumentSample(o)
	if s.options.observer != nil {
		s.options.observer(e)
	}
}

func (s *Search) finish() {
	s.done = true

	outcome := "not_found"
	if len(s.candidates) != 0 {
		outcome = "found"
	}
	s.record(outcome, "concealment search finished")
}

func (s *Search) record(outcome, msg string) {
	start := s.start
	if start.IsZero() {
		start = time.Now()
	}
	instrumentSearch(outcome, s.options.policy, start)

	logs.WithTag("search_id", s.options.searchID).
		WithTag("evaluated", s.evaluated).
		WithTag("candidates", len(s.candidates)).
		WithTag("not_navigable", s.rejections.NotNavigable).
		WithTag("visible", s.rejections.Visible).
		WithTag("unreachable", s.rejections.Unreachable).
		WithTag("policy", s.options.policy.String()).
		WithTag("outcome", outcome).
		Debug(msg)
}
