package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/hideaway/avoider"
	"github.com/aukilabs/hideaway/concealment"
	"github.com/aukilabs/hideaway/featureflag"
	hideawayhttp "github.com/aukilabs/hideaway/http"
	"github.com/aukilabs/hideaway/navigation"
	"github.com/aukilabs/hideaway/scenario"
	"github.com/aukilabs/hideaway/smoketest"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var (
	// The Hideaway version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "hideaway_info",
		Help:        "Hideaway information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr           string        `cli:""        env:"HIDEAWAY_ADDR"          help:"Listening address for search requests."`
	AdminAddr      string        `cli:""        env:"HIDEAWAY_ADMIN_ADDR"      help:"Admin listening address."`
	PublicEndpoint string        `cli:""        env:"HIDEAWAY_PUBLIC_ENDPOINT" help:"The public endpoint where this Hideaway server is reachable."`
	AuthToken      string        `cli:""        env:"HIDEAWAY_AUTH_TOKEN"    help:"Bearer token required by the search endpoints. Empty disables authentication."`
	LogLevel       string        `cli:""        env:"HIDEAWAY_LOG_LEVEL"     help:"Log level (debug|info|warning|error)."`
	LogIndent      bool          `cli:""        env:"HIDEAWAY_LOG_INDENT"    help:"Indent logs."`
	SnapDistance   float64       `cli:",hidden" env:"HIDEAWAY_SNAP_DISTANCE" help:"How far a sample may be moved to reach walkable ground when a scenario does not say."`
	MaxSamples     int           `cli:",hidden" env:"HIDEAWAY_MAX_SAMPLES"   help:"The maximum number of samples evaluated per request. 0 means no limit."`
	FeatureFlags   []string      `cli:",hidden" env:"HIDEAWAY_FEATURE_FLAGS" help:"Comma separated feature flags"`
	Scenario       string        `cli:""        env:"HIDEAWAY_SCENARIO"      help:"A YAML scenario file. When set, runs a single search on it, prints the result and exits."`
	Simulate       time.Duration `cli:""        env:"HIDEAWAY_SIMULATE"      help:"With a scenario, runs the avoider on a simulated agent for the given duration instead of a single search."`
	Version        bool          `cli:""        env:"-"                      help:"Show version."`
	Help           bool          `cli:""        env:"-"                      help:"Show help."`
}

func main() {
	conf := config{
		Addr:           ":4000",
		AdminAddr:      ":18190",
		PublicEndpoint: "http://localhost:4000",
		LogLevel:       logs.InfoLevel.String(),
		SnapDistance:   navigation.DefaultSnapDistance,
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Hideaway server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	flags := featureflag.New(conf.FeatureFlags)

	switch {
	case conf.Scenario != "" && conf.Simulate > 0:
		if err := simulate(ctx, conf, flags); err != nil {
			logs.Fatal(err)
		}
		return

	case conf.Scenario != "":
		if err := searchOnce(conf, flags); err != nil {
			logs.Fatal(err)
		}
		return
	}

	var ready atomic.Bool
	readinessCheck := ready.Load

	service := newServiceMux(ctx, conf, flags, readinessCheck)

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", hideawayhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", hideawayhttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("addr", conf.Addr).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("feature_flags", flags.List()).
		WithTag("auth", conf.AuthToken != "").
		Info("starting hideaway server")

	go func() {
		<-ctx.Done()
		ready.Store(false)
	}()
	ready.Store(true)

	hideawayhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(service,
			hideawayhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

// newServiceMux routes the public endpoints. The candidate stream is left out
// when disabled by feature flag.
func newServiceMux(ctx context.Context, conf config, flags featureflag.FeatureFlag, readinessCheck func() bool) *http.ServeMux {
	searchHandler := &hideawayhttp.SearchHandler{
		FeatureFlags: flags,
		SnapDistance: conf.SnapDistance,
		MaxSamples:   conf.MaxSamples,
	}

	service := http.NewServeMux()
	service.Handle("/health", hideawayhttp.HandleWithCORS(http.HandlerFunc(hideawayhttp.HandleHealthCheck)))
	service.Handle("/ready", hideawayhttp.HandleWithCORS(hideawayhttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/version", hideawayhttp.HandleWithCORS(hideawayhttp.HandleVersion(version)))
	service.Handle("/search", hideawayhttp.HandleWithCORS(
		hideawayhttp.VerifyAuthTokenHandler(conf.AuthToken, searchHandler)))
	flags.IfNotSet(featureflag.FlagDisableCandidateStream, func() {
		service.Handle("/search/stream", &hideawayhttp.StreamHandler{
			Search:    searchHandler,
			Handshake: hideawayhttp.VerifyAuthToken(conf.AuthToken),
		})
	})
	service.Handle("/smoke-test", hideawayhttp.VerifyAuthTokenHandler(conf.AuthToken, smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		UserAgent: fmt.Sprintf("Hideaway %s", version),
		SendResult: func(ctx context.Context, res smoketest.Results) error {
			logs.WithTag("smoke_test", res).Info("smoke test finished")
			return nil
		},
	})))

	return service
}

func loadWorld(conf config, flags featureflag.FeatureFlag) (*scenario.World, error) {
	s, err := scenario.Load(conf.Scenario, scenario.WithDefaultSnapDistance(conf.SnapDistance))
	if err != nil {
		return nil, err
	}

	w, err := s.Build()
	if err != nil {
		return nil, errors.New("building scenario failed").
			WithTag("path", conf.Scenario).
			Wrap(err)
	}

	flags.IfSet(featureflag.FlagExcludeUnreachable, func() {
		w.Policy = concealment.ExcludeUnreachable
	})
	return w, nil
}

// searchOnce runs a single search on the scenario file and prints the result
// on the standard output.
func searchOnce(conf config, flags featureflag.FeatureFlag) error {
	w, err := loadWorld(conf, flags)
	if err != nil {
		return err
	}

	searchID := uuid.NewString()
	res, err := w.FindConcealment(concealment.WithSearchID(searchID))
	if err != nil {
		return errors.New("search failed").
			WithTag("search_id", searchID).
			Wrap(err)
	}

	b, err := json.MarshalIndent(hideawayhttp.NewSearchResponse(searchID, res, true), "", "  ")
	if err != nil {
		return errors.New("encoding search result failed").Wrap(err)
	}

	fmt.Println(string(b))
	return nil
}

// simulate runs the avoider on an agent that reaches its destinations
// instantly and logs where it went.
func simulate(ctx context.Context, conf config, flags featureflag.FeatureFlag) error {
	w, err := loadWorld(conf, flags)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, conf.Simulate)
	defer cancel()

	agent := avoider.NewSimulatedAgent(w.Scenario.Agent.Pose, w.Scenario.Agent.HalfExtents)
	a := avoider.New("simulated", w, agent, agent)

	if err := a.Run(ctx); err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		return err
	}

	logs.WithTag("destinations", agent.Destinations()).
		WithTag("final_position", agent.Pose().Position).
		WithTag("hidden", !w.Observer.CanSeeTarget(agent.Pose().Position, agent.Bounds())).
		Info("simulation finished")
	return nil
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.SnapDistance < 0 {
		return errors.New("snap distance must not be negative").
			WithTag("snap_distance", conf.SnapDistance)
	}

	if conf.MaxSamples < 0 {
		return errors.New("max samples must not be negative").
			WithTag("max_samples", conf.MaxSamples)
	}

	if conf.Simulate > 0 && conf.Scenario == "" {
		return errors.New("simulation needs a scenario file")
	}

	return nil
}
