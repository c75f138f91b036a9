package http

import (
	"context"
	"io"
	"math"
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/hideaway/concealment"
	"github.com/aukilabs/hideaway/featureflag"
	"github.com/aukilabs/hideaway/geometry"
	"github.com/aukilabs/hideaway/scenario"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
)

const (
	// MaxRequestSize is the maximum size of a scenario document.
	MaxRequestSize = 1 << 20

	ErrTypeBadRequest = "bad_request"

	// The number of samples evaluated between two cancellation checks.
	stepBudget = 64
)

// SearchHandler runs a concealment search for every scenario posted to it.
type SearchHandler struct {
	FeatureFlags featureflag.FeatureFlag

	// The snap distance used when a scenario does not set one.
	SnapDistance float64

	// The maximum number of samples evaluated per search. A search cut short
	// returns the best candidate so far and is marked incomplete. 0 means no
	// limit.
	MaxSamples int
}

func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed").
			WithType(ErrTypeBadRequest).
			WithTag("method", r.Method))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("reading request body failed").
			WithType(ErrTypeBadRequest).
			Wrap(err))
		return
	}

	world, err := h.world(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	searchID := uuid.NewString()
	res, complete, err := h.run(r.Context(), world, searchID)
	if err != nil {
		writeError(w, statusCode(err), err)
		return
	}

	logs.WithTag("search_id", searchID).
		WithTag("found", res.Found).
		WithTag("evaluated", res.Evaluated).
		WithTag("complete", complete).
		Info("search served")

	writeJSON(w, http.StatusOK, NewSearchResponse(searchID, res, complete))
}

// world decodes a JSON scenario and builds it.
func (h *SearchHandler) world(b []byte) (*scenario.World, error) {
	var s scenario.Scenario
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, errors.New("decoding scenario failed").
			WithType(scenario.ErrTypeInvalidScenario).
			Wrap(err)
	}

	scenario.WithDefaultSnapDistance(h.SnapDistance)(&s)
	s.SetDefaults()

	w, err := s.Build()
	if err != nil {
		return nil, err
	}

	h.FeatureFlags.IfSet(featureflag.FlagExcludeUnreachable, func() {
		w.Policy = concealment.ExcludeUnreachable
	})
	return w, nil
}

// run searches around the world's agent. It reports whether every sample was
// evaluated.
func (h *SearchHandler) run(ctx context.Context, w *scenario.World, searchID string, opts ...concealment.Option) (concealment.Result, bool, error) {
	opts = append(w.SearchOptions(), append(opts, concealment.WithSearchID(searchID))...)

	search, err := concealment.NewSearch(
		w.Scenario.Agent.Pose,
		w.Scenario.Search.RegionSize,
		w.Scenario.Search.CellSize,
		w.Capabilities(),
		opts...,
	)
	if err != nil {
		return concealment.Result{}, false, err
	}

	for !search.Done() {
		budget := stepBudget
		if h.MaxSamples > 0 {
			remaining := h.MaxSamples - search.Evaluated()
			if remaining <= 0 {
				search.Abandon()
				break
			}
			budget = min(budget, remaining)
		}

		search.Step(budget)

		if err := ctx.Err(); err != nil {
			search.Abandon()
			return concealment.Result{}, false, errors.New("search interrupted").
				WithTag("search_id", searchID).
				Wrap(err)
		}
	}

	return search.Result(), search.Done(), nil
}

type SearchResponse struct {
	SearchID   string              `json:"search_id"`
	Found      bool                `json:"found"`
	Position   *geometry.Vector3   `json:"position,omitempty"`
	Cost       *float64            `json:"cost,omitempty"`
	Complete   bool                `json:"complete"`
	Evaluated  int                 `json:"evaluated"`
	Rejections RejectionsResponse  `json:"rejections"`
	Candidates []CandidateResponse `json:"candidates"`
}

type RejectionsResponse struct {
	NotNavigable int `json:"not_navigable"`
	Visible      int `json:"visible"`
	Unreachable  int `json:"unreachable"`
}

// CandidateResponse is a hiding spot. Cost is null when the spot cannot be
// reached.
type CandidateResponse struct {
	Order    int              `json:"order"`
	Position geometry.Vector3 `json:"position"`
	Cost     *float64         `json:"cost"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// NewSearchResponse converts a search result to its JSON form.
func NewSearchResponse(searchID string, res concealment.Result, complete bool) SearchResponse {
	candidates := make([]CandidateResponse, len(res.Candidates))
	for i, c := range res.Candidates {
		candidates[i] = CandidateResponse{
			Order:    c.Order,
			Position: c.Position,
			Cost:     finite(c.Cost),
		}
	}

	resp := SearchResponse{
		SearchID:  searchID,
		Found:     res.Found,
		Complete:  complete,
		Evaluated: res.Evaluated,
		Rejections: RejectionsResponse{
			NotNavigable: res.Rejections.NotNavigable,
			Visible:      res.Rejections.Visible,
			Unreachable:  res.Rejections.Unreachable,
		},
		Candidates: candidates,
	}
	if res.Found {
		position := res.Position
		resp.Position = &position
		resp.Cost = finite(res.Cost)
	}
	return resp
}

// finite returns nil for values JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func statusCode(err error) int {
	switch {
	case errors.IsType(err, scenario.ErrTypeInvalidScenario),
		errors.IsType(err, concealment.ErrTypeInvalidArgument),
		errors.IsType(err, ErrTypeBadRequest):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		logs.Warn(err)
	}

	writeJSON(w, status, ErrorResponse{
		Error: err.Error(),
		Type:  errors.Type(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.Warn(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
