package http

import (
	"context"
	"io"
	"net"
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/hideaway/concealment"
	"github.com/aukilabs/hideaway/featureflag"
	"github.com/aukilabs/hideaway/geometry"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	StreamMessageCandidate = "candidate"
	StreamMessageResult    = "result"
	StreamMessageError     = "error"
)

// JSON is a websocket codec that sends and receives JSON text frames.
var JSON = websocket.Codec{
	Marshal: func(v any) ([]byte, byte, error) {
		b, err := json.Marshal(v)
		return b, websocket.TextFrame, err
	},
	Unmarshal: func(data []byte, payloadType byte, v any) error {
		return json.Unmarshal(data, v)
	},
}

// StreamMessage is what the candidate stream sends. Exactly one of
// Candidate, Result and Error is set, depending on Type.
type StreamMessage struct {
	Type      string          `json:"type"`
	SearchID  string          `json:"search_id,omitempty"`
	Candidate *EventResponse  `json:"candidate,omitempty"`
	Result    *SearchResponse `json:"result,omitempty"`
	Error     *ErrorResponse  `json:"error,omitempty"`
}

// EventResponse describes a single evaluated sample. Snapped is missing when
// the sample could not be snapped to walkable ground.
type EventResponse struct {
	Order   int                 `json:"order"`
	Sample  geometry.Vector2    `json:"sample"`
	World   geometry.Vector3    `json:"world"`
	Snapped *geometry.Vector3   `json:"snapped,omitempty"`
	Outcome concealment.Outcome `json:"outcome"`
	Cost    *float64            `json:"cost,omitempty"`
}

func newEventResponse(e concealment.CandidateEvent) *EventResponse {
	resp := &EventResponse{
		Order:   e.Order,
		Sample:  e.Sample,
		World:   e.World,
		Outcome: e.Outcome,
		Cost:    finite(e.Cost),
	}
	if e.Outcome != concealment.OutcomeNotNavigable {
		snapped := e.Snapped
		resp.Snapped = &snapped
	}
	return resp
}

// StreamHandler runs a search for a scenario received over a WebSocket and
// streams every evaluated sample, then the result.
type StreamHandler struct {
	Search *SearchHandler

	// Verifies the connection request. Nil accepts everything.
	Handshake func(*websocket.Config, *http.Request) error
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Search.FeatureFlags.IsSet(featureflag.FlagDisableCandidateStream) {
		http.NotFound(w, r)
		return
	}

	handshake := h.Handshake
	if handshake == nil {
		handshake = func(*websocket.Config, *http.Request) error { return nil }
	}

	websocket.Server{
		Handshake: handshake,
		Handler:   h.handle,
	}.ServeHTTP(w, r)
}

func (h *StreamHandler) handle(conn *websocket.Conn) {
	defer conn.Close()

	streamConnectedClients.Inc()
	defer streamConnectedClients.Dec()

	searchID := uuid.NewString()

	var doc []byte
	if err := websocket.Message.Receive(conn, &doc); err != nil {
		if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			logs.Warn(errors.New("receiving scenario failed").
				WithTag("search_id", searchID).
				Wrap(err))
		}
		return
	}

	world, err := h.Search.world(doc)
	if err != nil {
		h.sendError(conn, searchID, err)
		return
	}

	ctx, cancel := context.WithCancel(conn.Request().Context())
	defer cancel()

	var sendErr error
	observe := func(e concealment.CandidateEvent) {
		if sendErr != nil {
			return
		}
		sendErr = send(conn, StreamMessage{
			Type:      StreamMessageCandidate,
			SearchID:  searchID,
			Candidate: newEventResponse(e),
		})
		if sendErr != nil {
			cancel()
		}
	}

	res, complete, err := h.Search.run(ctx, world, searchID, concealment.WithObserver(observe))
	if sendErr != nil {
		logs.Warn(errors.New("streaming candidate failed").
			WithTag("search_id", searchID).
			Wrap(sendErr))
		return
	}
	if err != nil {
		h.sendError(conn, searchID, err)
		return
	}

	result := NewSearchResponse(searchID, res, complete)
	if err := send(conn, StreamMessage{
		Type:     StreamMessageResult,
		SearchID: searchID,
		Result:   &result,
	}); err != nil {
		logs.Warn(errors.New("sending search result failed").
			WithTag("search_id", searchID).
			Wrap(err))
		return
	}

	logs.WithTag("search_id", searchID).
		WithTag("found", res.Found).
		WithTag("evaluated", res.Evaluated).
		WithTag("complete", complete).
		Info("search streamed")
}

func (h *StreamHandler) sendError(conn *websocket.Conn, searchID string, err error) {
	if statusCode(err) >= http.StatusInternalServerError {
		logs.Warn(err)
	}

	if err := send(conn, StreamMessage{
		Type:     StreamMessageError,
		SearchID: searchID,
		Error: &ErrorResponse{
			Error: err.Error(),
			Type:  errors.Type(err),
		},
	}); err != nil {
		logs.Warn(errors.New("sending search error failed").
			WithTag("search_id", searchID).
			Wrap(err))
	}
}

func send(conn *websocket.Conn, msg StreamMessage) error {
	err := JSON.Send(conn, msg)
	instrumentSend(msg.Type, err)
	return err
}
