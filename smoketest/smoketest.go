// Package smoketest checks that a hideaway server answers searches, both over
// HTTP and over the candidate stream.
package smoketest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	hideawayhttp "github.com/aukilabs/hideaway/http"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const DefaultTimeout = 10 * time.Second

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// probe has an observer looking north at the agent over open ground, which
// always leaves somewhere to hide.
const probe = `{
	"search": {"region_size": 10, "cell_size": 1, "seed": 1},
	"agent": {"pose": {"position": {"x": 0, "y": 0, "z": 0}}},
	"observer": {"pose": {"position": {"x": 0, "y": 0, "z": -6}}},
	"navigation": {"origin": {"x": -10, "y": -10}, "cols": 20, "rows": 20}
}`

type Request struct {
	Endpoint string        `json:"endpoint"`
	Token    string        `json:"token,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

type Results struct {
	FromEndpoint          string  `json:"from_endpoint"`
	ToEndpoint            string  `json:"to_endpoint"`
	Status                Status  `json:"status"`
	SearchLatencyMilliSec float64 `json:"search_latency_ms"`
	StreamLatencyMilliSec float64 `json:"stream_latency_ms"`
	Error                 string  `json:"error,omitempty"`
}

type Options struct {
	// The endpoint of the server running the smoke test.
	Endpoint string

	UserAgent  string
	SendResult func(context.Context, Results) error
}

type testCtxKey string

var testCtxKeyValue testCtxKey = "test-context"

type testContext struct {
	context.Context
	Cancel func()
}

// HandleSmokeTest starts a smoke test against the endpoint in the request
// body and reports the results with opts.SendResult once done.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if err := json.Unmarshal(b, &req); err != nil || req.Endpoint == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		go func() {
			defer func() {
				// if context is of testContext
				// cancel context on exit to signal function exited
				// this is used for testing
				if tctx := ctx.Value(testCtxKeyValue); tctx != nil {
					testCtx := tctx.(testContext)
					if testCtx.Cancel != nil {
						testCtx.Cancel()
					}
				}
			}()

			res, err := Run(ctx, RunOptions{
				FromEndpoint: opts.Endpoint,
				ToEndpoint:   req.Endpoint,
				Token:        req.Token,
				Timeout:      req.Timeout,
				UserAgent:    opts.UserAgent,
			})
			if err != nil {
				logs.Warn(err)
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("from_endpoint", opts.Endpoint).
					WithTag("to_endpoint", req.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}

type RunOptions struct {
	FromEndpoint string
	ToEndpoint   string
	Token        string
	Timeout      time.Duration
	UserAgent    string
}

// Run searches the probe scenario on the target endpoint, first with a plain
// request and then over the candidate stream. The results are filled even
// when an error is returned.
func Run(ctx context.Context, opts RunOptions) (Results, error) {
	res := Results{
		FromEndpoint: opts.FromEndpoint,
		ToEndpoint:   opts.ToEndpoint,
		Status:       StatusFailed,
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fail := func(err error) (Results, error) {
		err = errors.New("smoke test failed").
			WithTag("from_endpoint", opts.FromEndpoint).
			WithTag("to_endpoint", opts.ToEndpoint).
			Wrap(err)
		res.Error = err.Error()
		return res, err
	}

	start := time.Now()
	if err := search(ctx, opts); err != nil {
		return fail(err)
	}
	res.SearchLatencyMilliSec = milliseconds(time.Since(start))

	start = time.Now()
	if err := stream(ctx, opts); err != nil {
		return fail(err)
	}
	res.StreamLatencyMilliSec = milliseconds(time.Since(start))

	res.Status = StatusSuccess
	return res, nil
}

func search(ctx context.Context, opts RunOptions) error {
	endpoint, err := url.JoinPath(opts.ToEndpoint, "search")
	if err != nil {
		return errors.New("invalid endpoint").Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(probe)))
	if err != nil {
		return errors.New("creating search request failed").Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	setHeaders(req.Header, opts)

	httpRes, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.New("search request failed").Wrap(err)
	}
	defer httpRes.Body.Close()

	b, err := io.ReadAll(httpRes.Body)
	if err != nil {
		return errors.New("reading search response failed").Wrap(err)
	}

	if httpRes.StatusCode != http.StatusOK {
		return errors.New("unexpected search status").
			WithTag("status", httpRes.StatusCode).
			WithTag("body", string(b))
	}

	var resp hideawayhttp.SearchResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return errors.New("decoding search response failed").Wrap(err)
	}
	if !resp.Found {
		return errors.New("search found no hiding spot").
			WithTag("search_id", resp.SearchID)
	}
	return nil
}

func stream(ctx context.Context, opts RunOptions) error {
	endpoint, err := url.Parse(opts.ToEndpoint)
	if err != nil {
		return errors.New("invalid endpoint").Wrap(err)
	}
	origin := endpoint.String()

	endpoint = endpoint.JoinPath("search", "stream")
	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	default:
		endpoint.Scheme = "ws"
	}

	config, err := websocket.NewConfig(endpoint.String(), origin)
	if err != nil {
		return errors.New("creating stream config failed").Wrap(err)
	}
	setHeaders(config.Header, opts)

	conn, err := config.DialContext(ctx)
	if err != nil {
		return errors.New("connecting to candidate stream failed").Wrap(err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := websocket.Message.Send(conn, probe); err != nil {
		return errors.New("sending probe scenario failed").Wrap(err)
	}

	candidates := 0
	for {
		var msg hideawayhttp.StreamMessage
		if err := hideawayhttp.JSON.Receive(conn, &msg); err != nil {
			return errors.New("receiving stream message failed").Wrap(err)
		}

		switch msg.Type {
		case hideawayhttp.StreamMessageCandidate:
			candidates++

		case hideawayhttp.StreamMessageResult:
			if msg.Result == nil || !msg.Result.Found {
				return errors.New("stream found no hiding spot").
					WithTag("search_id", msg.SearchID)
			}
			if msg.Result.Evaluated != candidates {
				return errors.New("stream missed candidates").
					WithTag("search_id", msg.SearchID).
					WithTag("received", candidates).
					WithTag("evaluated", msg.Result.Evaluated)
			}
			return nil

		case hideawayhttp.StreamMessageError:
			var reason string
			if msg.Error != nil {
				reason = msg.Error.Error
			}
			return errors.New("stream returned an error").
				WithTag("search_id", msg.SearchID).
				WithTag("reason", reason)

		default:
			return errors.New("unexpected stream message").
				WithTag("type", msg.Type)
		}
	}
}

func setHeaders(h http.Header, opts RunOptions) {
	if opts.Token != "" {
		h.Set("Authorization", "Bearer "+opts.Token)
	}
	if opts.UserAgent != "" {
		h.Set("User-Agent", opts.UserAgent)
	}
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
