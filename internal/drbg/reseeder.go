package drbg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/armon/go-metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/xtding233/seedpool/internal/entropy"
)

// ReseederConfig configures NewReseeder.
type ReseederConfig struct {
	// Algorithm must be secure. Empty selects Default.
	Algorithm Algorithm
	Source    entropy.Source
	// Policy zero value selects DefaultPolicy.
	Policy  Policy
	Logger  hclog.Logger
	Metrics *metrics.Metrics
}

// Stats is a snapshot of a Reseeder's counters.
type Stats struct {
	ID        string
	Algorithm Algorithm
	// Bytes and Requests count output since the last reseed.
	Bytes      uint64
	Requests   uint64
	TotalBytes uint64
	Reseeds    uint64
	LastReseed time.Time
}

// Reseeder owns a secure generator together with its entropy source and
// reseed policy. It tracks output since the last seeding and forces a
// reseed from the source once either limit is reached.
// If that reseed fails the request fails: the generator never keeps running
// past its policy on stale state.
//
// A Reseeder is safe for concurrent use.
type Reseeder struct {
	id     string
	alg    Algorithm
	src    entropy.Source
	policy Policy

	logger  hclog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	gen        Secure
	bytes      uint64
	requests   uint64
	total      uint64
	reseeds    uint64
	lastReseed time.Time
}

// NewReseeder seeds a generator from cfg.Source. It may block on the source.
func NewReseeder(ctx context.Context, cfg ReseederConfig) (*Reseeder, error) {
	alg := cfg.Algorithm
	if alg == "" {
		alg = Default
	}
	if !alg.Secure() {
		return nil, fmt.Errorf("%w: %s", ErrInsecureAlgorithm, alg)
	}
	if cfg.Source == nil {
		return nil, errors.New("reseeder needs an entropy source")
	}
	policy := cfg.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	r := &Reseeder{
		id:      uuid.NewString(),
		alg:     alg,
		src:     cfg.Source,
		policy:  policy,
		metrics: cfg.Metrics,
	}
	r.logger = logger.Named("drbg").With("generator", r.id, "algorithm", string(alg))

	seed, err := entropy.Gather(ctx, r.src, policy.seedBytes())
	if err != nil {
		r.incr("drbg", "reseed_failures")
		return nil, fmt.Errorf("seed %s generator: %w", alg, err)
	}
	gen, err := New(alg, seed)
	if err != nil {
		return nil, err
	}
	r.gen = gen
	r.lastReseed = time.Now()
	r.logger.Debug("generator seeded", "source", r.src.Name())
	return r, nil
}

// ID identifies the generator instance in logs.
func (r *Reseeder) ID() string { return r.id }

// Algorithm reports the underlying construction.
func (r *Reseeder) Algorithm() Algorithm { return r.alg }

// Policy returns the reseed policy.
func (r *Reseeder) Policy() Policy { return r.policy }

// Fill fills p with output, reseeding first whenever the policy requires.
func (r *Reseeder) Fill(ctx context.Context, p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.requests >= r.policy.ReseedRequests {
		if err := r.reseedLocked(ctx, "requests"); err != nil {
			return err
		}
	}
	r.requests++
	r.incr("drbg", "requests")

	for {
		if r.bytes >= r.policy.ReseedBytes {
			if err := r.reseedLocked(ctx, "bytes"); err != nil {
				return err
			}
			// the rest of this request is served by the new seed
			r.requests = 1
		}
		n := len(p)
		if budget := r.policy.ReseedBytes - r.bytes; uint64(n) > budget {
			n = int(budget)
		}
		r.gen.Read(p[:n])
		r.bytes += uint64(n)
		r.total += uint64(n)
		if r.metrics != nil {
			r.metrics.IncrCounter([]string{"drbg", "generated_bytes"}, float32(n))
		}
		p = p[n:]
		if len(p) == 0 {
			return nil
		}
	}
}

// Read implements io.Reader. It fails only when a due reseed fails.
func (r *Reseeder) Read(p []byte) (int, error) {
	if err := r.Fill(context.Background(), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Next returns n bytes of output.
func (r *Reseeder) Next(ctx context.Context, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative length %d", n)
	}
	out := make([]byte, n)
	if err := r.Fill(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Reseed mixes fresh material from the source into the generator now.
func (r *Reseeder) Reseed(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reseedLocked(ctx, "forced")
}

// Refresh mixes caller supplied material into the generator. It counts as a
// reseed for policy purposes.
func (r *Reseeder) Refresh(material entropy.SeedMaterial) error {
	if err := entropy.CheckSeed(material, r.policy.MinSeedBytes); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.gen.Refresh(material); err != nil {
		return err
	}
	r.resetLocked()
	r.logger.Debug("generator refreshed from caller material")
	return nil
}

// Fork derives an independent generator for one goroutine or unit of work.
// An empty alg uses the Reseeder's own algorithm.
func (r *Reseeder) Fork(ctx context.Context, alg Algorithm) (Secure, error) {
	if alg == "" {
		alg = r.alg
	}
	seed := make([]byte, SeedBytes)
	if err := r.Fill(ctx, seed); err != nil {
		return nil, err
	}
	return New(alg, seed)
}

// Stats returns the current counters.
func (r *Reseeder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		ID:         r.id,
		Algorithm:  r.alg,
		Bytes:      r.bytes,
		Requests:   r.requests,
		TotalBytes: r.total,
		Reseeds:    r.reseeds,
		LastReseed: r.lastReseed,
	}
}

func (r *Reseeder) reseedLocked(ctx context.Context, reason string) error {
	if r.metrics != nil {
		defer r.metrics.MeasureSince([]string{"drbg", "reseed"}, time.Now())
	}
	material, err := entropy.Gather(ctx, r.src, r.policy.seedBytes())
	if err != nil {
		r.incr("drbg", "reseed_failures")
		r.logger.Error("reseed failed", "reason", reason, "source", r.src.Name(), "error", err)
		return fmt.Errorf("reseed %s generator: %w", r.alg, err)
	}
	if err := r.gen.Refresh(material); err != nil {
		return err
	}
	r.resetLocked()
	r.incr("drbg", "reseeds")
	r.logger.Debug("generator reseeded", "reason", reason)
	return nil
}

func (r *Reseeder) resetLocked() {
	r.bytes = 0
	r.requests = 0
	r.reseeds++
	r.lastReseed = time.Now()
}

func (r *Reseeder) incr(key ...string) {
	if r.metrics != nil {
		r.metrics.IncrCounter(key, 1)
	}
}
