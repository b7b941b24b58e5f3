// Package roundtable wires a configured team of AI agents into a running
// conversation service. Most applications interact with this package by:
//  1. Loading a config.Config (defaults, YAML file and environment)
//  2. Calling Open to build the store, roster, engine and HTTP handler
//  3. Serving App.Handler and calling App.Close on shutdown
//
// Open delegates orchestration to engine.Engine and cascades to
// runner.Runner. The defaults use an in-memory store when the configured
// driver is "memory", which is convenient for local development and tests.
package roundtable

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lalomorales22/roundtable/config"
	"github.com/lalomorales22/roundtable/core"
	"github.com/lalomorales22/roundtable/engine"
	"github.com/lalomorales22/roundtable/internal/metrics"
	"github.com/lalomorales22/roundtable/internal/server"
	"github.com/lalomorales22/roundtable/logging"
	"github.com/lalomorales22/roundtable/roster"
	"github.com/lalomorales22/roundtable/runner"
	"github.com/lalomorales22/roundtable/session"
	redisstore "github.com/lalomorales22/roundtable/storage/redis"
	"github.com/lalomorales22/roundtable/storage/sqlite"
	"github.com/prometheus/client_golang/prometheus"
)

// Options configures Open.
type Options struct {
	// Store overrides the store selected by the database driver.
	Store core.Store

	// Clients replaces the vendor client of the named API entries.
	Clients map[string]core.AgentClient

	// Registerer receives the Prometheus collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// App aggregates the engine, the cascade runner and the HTTP surface built
// from one configuration.
type App struct {
	engine  *engine.Engine
	runner  *runner.Runner
	server  *server.Server
	metrics *metrics.Collector
	closer  func() error
}

// Open builds an App from cfg. The caller owns the returned App and must
// call Close to release the store.
func Open(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*App, error) {
	opts := Options{
		Registerer: prometheus.DefaultRegisterer,
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	store, closer, err := openStore(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	r, err := roster.Build(cfg, func(o *roster.BuildOptions) {
		o.Overrides = opts.Clients
	})
	if err != nil {
		_ = closer()
		return nil, fmt.Errorf("build roster: %w", err)
	}

	collector := metrics.NewCollector(func(o *metrics.Options) {
		o.Registerer = opts.Registerer
	})

	callbacks := engine.NewCallbackManager()
	collector.Register(callbacks)

	eng, err := engine.New(r, func(o *engine.Options) {
		o.Config = EngineConfig(cfg.Round)
		o.Store = store
		o.Callbacks = callbacks
		o.Logger = opts.Logger
	})
	if err != nil {
		_ = closer()
		return nil, err
	}

	run := runner.New(eng, func(o *runner.Options) {
		o.MaxRounds = cfg.Round.MaxRounds
		o.RoundPause = cfg.Round.SpeakerPause
		o.Logger = opts.Logger
	})

	srv := server.New(eng, func(o *server.Options) {
		o.Runner = run
		o.MaxRounds = cfg.Round.MaxRounds
		o.Metrics = collector
		o.Logger = opts.Logger
	})

	_, hasSummarizer := r.Summarizer()
	opts.Logger.Info("roundtable opened",
		"driver", cfg.Database.Driver,
		"agents", r.Names(),
		"summarizer", hasSummarizer,
	)

	return &App{
		engine:  eng,
		runner:  run,
		server:  srv,
		metrics: collector,
		closer:  closer,
	}, nil
}

// EngineConfig maps the round section of the configuration onto
// engine.Config, keeping engine defaults for unset values.
func EngineConfig(rc config.RoundConfig) engine.Config {
	c := engine.DefaultConfig
	if rc.Window > 0 {
		c.Window = rc.Window
	}
	if rc.CallTimeout > 0 {
		c.CallTimeout = rc.CallTimeout
	}
	if rc.RetryAttempts > 0 {
		c.RetryAttempts = rc.RetryAttempts
	}
	if rc.RetryInterval > 0 {
		c.RetryInterval = rc.RetryInterval
	}
	c.SpeakerPause = rc.SpeakerPause
	c.ContinueThreshold = rc.ContinueThreshold
	c.Memories = rc.Memories
	return c
}

func openStore(ctx context.Context, cfg *config.Config, opts Options) (core.Store, func() error, error) {
	noop := func() error { return nil }

	if opts.Store != nil {
		return opts.Store, noop, nil
	}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		return session.NewStore(), noop, nil
	case config.DriverSQLite:
		s, err := sqlite.New(cfg.Database.Path, func(o *sqlite.Options) {
			o.Logger = opts.Logger
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	case config.DriverRedis:
		s, err := redisstore.New(ctx, func(o *redisstore.Options) {
			o.Addr = cfg.Database.RedisAddr
			o.Password = cfg.Database.RedisPassword
			o.DB = cfg.Database.RedisDB
			o.Prefix = cfg.Database.RedisPrefix
			o.Logger = opts.Logger
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// Engine returns the round engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Runner returns the cascade runner.
func (a *App) Runner() *runner.Runner { return a.runner }

// Store returns the conversation store.
func (a *App) Store() core.Store { return a.engine.Store() }

// Handler returns the instrumented HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Close releases the store.
func (a *App) Close() error { return a.closer() }

// Metrics returns the Prometheus collector fed by engine callbacks.
func (a *App) Metrics() *metrics.Collector { return a.metrics }
