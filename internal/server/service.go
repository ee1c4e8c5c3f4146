// Package server exposes a Reseeder over HTTP and gRPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"

	"github.com/xtding233/seedpool/internal/drbg"
	"github.com/xtding233/seedpool/internal/entropy"
	"github.com/xtding233/seedpool/internal/sample"
	"github.com/xtding233/seedpool/internal/stattest"
)

// ErrInvalidRequest reports a request the service refuses to serve.
var ErrInvalidRequest = errors.New("invalid request")

const (
	// DefaultSelfTestBytes is the sample size of SelfTest when none is given.
	DefaultSelfTestBytes = 1 << 16
	maxSelfTestBytes     = 1 << 22
)

// Config configures NewService.
type Config struct {
	Generator       *drbg.Reseeder
	MaxRequestBytes int
	Logger          hclog.Logger
	// Sink backs GET /v1/metrics. Optional.
	Sink *metrics.InmemSink
}

// Service is the transport independent core shared by the HTTP and gRPC
// front ends. The generator can be swapped when policy changes.
type Service struct {
	logger hclog.Logger
	sink   *metrics.InmemSink

	mu       sync.RWMutex
	gen      *drbg.Reseeder
	maxBytes int
}

// NewService creates a Service around cfg.Generator.
func NewService(cfg Config) (*Service, error) {
	if cfg.Generator == nil {
		return nil, errors.New("service needs a generator")
	}
	if cfg.MaxRequestBytes <= 0 {
		return nil, fmt.Errorf("max request bytes must be > 0, got %d", cfg.MaxRequestBytes)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		logger:   logger.Named("server"),
		sink:     cfg.Sink,
		gen:      cfg.Generator,
		maxBytes: cfg.MaxRequestBytes,
	}, nil
}

// Swap replaces the generator and request limit, e.g. after a policy reload.
// Requests already running finish on the old generator.
func (s *Service) Swap(gen *drbg.Reseeder, maxRequestBytes int) {
	s.mu.Lock()
	old := s.gen
	s.gen = gen
	if maxRequestBytes > 0 {
		s.maxBytes = maxRequestBytes
	}
	s.mu.Unlock()
	s.logger.Info("generator swapped", "old", old.ID(), "new", gen.ID(), "algorithm", string(gen.Algorithm()))
}

func (s *Service) current() (*drbg.Reseeder, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen, s.maxBytes
}

// Stats reports the current generator's counters.
func (s *Service) Stats() drbg.Stats {
	gen, _ := s.current()
	return gen.Stats()
}

// MaxRequestBytes is the largest Bytes request served.
func (s *Service) MaxRequestBytes() int {
	_, n := s.current()
	return n
}

// Bytes returns n bytes of generator output.
func (s *Service) Bytes(ctx context.Context, n int) ([]byte, error) {
	gen, limit := s.current()
	if n <= 0 || n > limit {
		return nil, fmt.Errorf("%w: n must be in [1, %d], got %d", ErrInvalidRequest, limit, n)
	}
	return gen.Next(ctx, n)
}

// IntN returns a uniform integer in [0, n).
func (s *Service) IntN(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: max must be > 0, got %d", ErrInvalidRequest, n)
	}
	gen, _ := s.current()
	return sample.IntN(reader{ctx: ctx, gen: gen}, n)
}

// Float64 returns a uniform float in [0, 1).
func (s *Service) Float64(ctx context.Context) (float64, error) {
	gen, _ := s.current()
	return sample.Float64(reader{ctx: ctx, gen: gen})
}

// Reseed forces a reseed of the current generator.
func (s *Service) Reseed(ctx context.Context) (drbg.Stats, error) {
	gen, _ := s.current()
	if err := gen.Reseed(ctx); err != nil {
		return drbg.Stats{}, err
	}
	s.logger.Info("forced reseed", "generator", gen.ID())
	return gen.Stats(), nil
}

// SelfTest runs the statistical battery over n bytes from a generator forked
// off the current one, so the tested bytes are never served.
func (s *Service) SelfTest(ctx context.Context, n int) (stattest.Report, error) {
	if n == 0 {
		n = DefaultSelfTestBytes
	}
	if n < 0 || n > maxSelfTestBytes {
		return stattest.Report{}, fmt.Errorf("%w: n must be in [1, %d], got %d", ErrInvalidRequest, maxSelfTestBytes, n)
	}
	gen, _ := s.current()
	child, err := gen.Fork(ctx, "")
	if err != nil {
		return stattest.Report{}, err
	}
	rep, err := stattest.Battery(child.Next(n), stattest.DefaultAlpha)
	if err != nil {
		return stattest.Report{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !rep.Passed() {
		s.logger.Warn("self test failed", "checks", rep.Failed(), "bytes", n)
	}
	return rep, nil
}

// IsEntropyFailure reports whether err comes from seeding rather than from
// the request.
func IsEntropyFailure(err error) bool {
	return errors.Is(err, entropy.ErrSourceUnavailable) || errors.Is(err, entropy.ErrInsufficientEntropy)
}

// reader binds a request context to a Reseeder for package sample.
type reader struct {
	ctx context.Context
	gen *drbg.Reseeder
}

func (r reader) Read(p []byte) (int, error) {
	if err := r.gen.Fill(r.ctx, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
