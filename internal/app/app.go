// Package app wires configuration, entropy sources, the generator and both
// servers into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/xtding233/seedpool/internal/config"
	"github.com/xtding233/seedpool/internal/drbg"
	"github.com/xtding233/seedpool/internal/entropy"
	"github.com/xtding233/seedpool/internal/server"
)

const (
	shutdownTimeout        = 10 * time.Second
	defaultSeedTimeout     = 30 * time.Second
	defaultMetricsInterval = 10 * time.Second
	defaultMetricsRetain   = time.Minute
)

// Options configures New.
type Options struct {
	Env    config.ServerEnv
	Logger hclog.Logger
	// Source replaces the sources named in the policy files. Tests use it to
	// inject fixed seeds.
	Source entropy.Source
}

// App is a running seedpool process.
type App struct {
	env     config.ServerEnv
	logger  hclog.Logger
	sink    *metrics.InmemSink
	metrics *metrics.Metrics
	loader  *config.Loader
	source  entropy.Source

	mu     sync.Mutex
	params config.Params

	svc    *server.Service
	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

// New loads policy, seeds the generator and prepares both servers. Seeding
// is retried with exponential backoff for up to env.SeedTimeout while the
// source reports itself unavailable.
func New(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(opts.Env.LogLevel, opts.Env.LogJSON, nil)
	}

	if opts.Env.SeedTimeout <= 0 {
		opts.Env.SeedTimeout = defaultSeedTimeout
	}
	if opts.Env.MetricsInterval <= 0 {
		opts.Env.MetricsInterval = defaultMetricsInterval
	}
	if opts.Env.MetricsRetain < opts.Env.MetricsInterval {
		opts.Env.MetricsRetain = max(defaultMetricsRetain, opts.Env.MetricsInterval)
	}
	sink := metrics.NewInmemSink(opts.Env.MetricsInterval, opts.Env.MetricsRetain)
	mcfg := metrics.DefaultConfig("seedpool")
	mcfg.EnableHostname = false
	m, err := metrics.New(mcfg, sink)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	loader := config.NewLoader(opts.Env.ConfigDir)
	_, params, err := loader.Resolve(opts.Env.Profile, opts.Env.Overrides())
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	a := &App{
		env:     opts.Env,
		logger:  logger,
		sink:    sink,
		metrics: m,
		loader:  loader,
		source:  opts.Source,
		params:  params,
	}

	gen, err := a.seed(ctx, params)
	if err != nil {
		return nil, err
	}
	a.svc, err = server.NewService(server.Config{
		Generator:       gen,
		MaxRequestBytes: params.MaxRequestBytes,
		Logger:          logger,
		Sink:            sink,
	})
	if err != nil {
		return nil, err
	}

	a.http = &http.Server{
		Handler:           server.NewHTTPHandler(a.svc, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.grpc, a.health = server.NewGRPCServer(a.svc, logger)

	logger.Info("generator ready",
		"algorithm", params.Algorithm,
		"profile", params.Profile,
		"policy_version", params.Version,
		"reseed_bytes", params.ReseedBytes,
		"reseed_requests", params.ReseedRequests,
	)
	return a, nil
}

// Service exposes the core service, mainly for tests.
func (a *App) Service() *server.Service { return a.svc }

// Params returns the policy currently in force.
func (a *App) Params() config.Params {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.params
}

// Run listens on the configured addresses and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	httpLis, err := net.Listen("tcp", a.env.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	grpcLis, err := net.Listen("tcp", a.env.GRPCAddr)
	if err != nil {
		httpLis.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}
	return a.Serve(ctx, httpLis, grpcLis)
}

// Serve runs the HTTP server, the gRPC server and the policy watcher on the
// given listeners. It returns when ctx is done or any of them fails. The
// watcher only exists while Serve runs.
func (a *App) Serve(ctx context.Context, httpLis, grpcLis net.Listener) error {
	var watcher *config.Watcher
	if a.env.WatchPolicy {
		var err error
		watcher, err = config.NewWatcher(config.WatcherConfig{
			Loader:    a.loader,
			Profile:   a.env.Profile,
			Overrides: a.env.Overrides(),
			Logger:    a.logger,
			OnChange:  a.reload,
		})
		if err != nil {
			httpLis.Close()
			grpcLis.Close()
			return fmt.Errorf("watch policy: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http listening", "addr", httpLis.Addr().String())
		if err := a.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.logger.Info("grpc listening", "addr", grpcLis.Addr().String())
		if err := a.grpc.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	})
	if watcher != nil {
		g.Go(func() error { return watcher.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.health.Shutdown()
		a.grpc.GracefulStop()
		return a.http.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// seed builds a Reseeder for params, retrying while the entropy source is
// unavailable. Configuration errors are not retried.
func (a *App) seed(ctx context.Context, params config.Params) (*drbg.Reseeder, error) {
	src := a.source
	if src == nil {
		pool, err := BuildSource(params, a.logger, a.metrics)
		if err != nil {
			return nil, err
		}
		src = pool
	}

	var b backoff.BackOff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
		backoff.WithMaxElapsedTime(a.env.SeedTimeout),
	)
	b = backoff.WithContext(b, ctx)

	var gen *drbg.Reseeder
	op := func() error {
		r, err := drbg.NewReseeder(ctx, drbg.ReseederConfig{
			Algorithm: params.GeneratorAlgorithm(),
			Source:    src,
			Policy:    params.Policy(),
			Logger:    a.logger,
			Metrics:   a.metrics,
		})
		if err != nil {
			if errors.Is(err, entropy.ErrSourceUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		gen = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		a.logger.Warn("seeding failed, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("seed generator: %w", err)
	}
	return gen, nil
}

// reload swaps in a generator built for the new policy. On failure the
// current generator keeps serving.
func (a *App) reload(params config.Params) {
	ctx, cancel := context.WithTimeout(context.Background(), a.env.SeedTimeout)
	defer cancel()
	gen, err := a.seed(ctx, params)
	if err != nil {
		a.logger.Error("policy reload failed, keeping current generator", "error", err)
		return
	}
	a.svc.Swap(gen, params.MaxRequestBytes)
	a.mu.Lock()
	a.params = params
	a.mu.Unlock()
	a.logger.Info("policy applied", "algorithm", params.Algorithm, "policy_version", params.Version)
}
