package entropy

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/crypto/blake2b"
)

const poolDomain = "seedpool/entropy-pool/v1"

// PoolSource is one input of a Pool.
type PoolSource struct {
	Source Source
	// Required sources must succeed on every read. Optional sources only
	// add to the pool when they work.
	Required bool
}

// PoolConfig configures NewPool.
type PoolConfig struct {
	Sources []PoolSource
	Logger  hclog.Logger
	Metrics *metrics.Metrics
}

// Pool mixes several sources into one. Every read absorbs fresh input from
// each source into a BLAKE2b-512 running state, squeezes the output from an
// XOF keyed by that state and then ratchets the state forward, so output
// depends on every input the pool has ever seen and an observer of the
// current state learns nothing about past output.
type Pool struct {
	mu      sync.Mutex
	sources []PoolSource
	state   [blake2b.Size]byte
	reads   uint64

	logger  hclog.Logger
	metrics *metrics.Metrics
}

// NewPool returns a pool over cfg.Sources. At least one source is required.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if len(cfg.Sources) == 0 {
		return nil, errors.New("entropy pool needs at least one source")
	}
	for i, s := range cfg.Sources {
		if s.Source == nil {
			return nil, fmt.Errorf("entropy pool source %d is nil", i)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Pool{
		sources: append([]PoolSource(nil), cfg.Sources...),
		logger:  logger.Named("pool"),
		metrics: cfg.Metrics,
	}, nil
}

func (p *Pool) Name() string { return "pool" }

// ReadEntropy fills out from the pool. It fails if a required source fails
// or if no source produced anything.
func (p *Pool) ReadEntropy(ctx context.Context, out []byte) error {
	if len(out) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	h, err := blake2b.New512(p.state[:])
	if err != nil {
		return unavailable(p.Name(), err)
	}
	writeField(h, []byte(poolDomain))
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], p.reads)
	h.Write(counter[:])

	want := len(out)
	if want < MinSeedBytes {
		want = MinSeedBytes
	}
	buf := make([]byte, want)
	defer clear(buf)

	var errs *multierror.Error
	contributed := 0
	for _, s := range p.sources {
		name := s.Source.Name()
		if err := s.Source.ReadEntropy(ctx, buf); err != nil {
			errs = multierror.Append(errs, err)
			p.incr("entropy", "source_failures")
			if s.Required {
				p.logger.Error("required entropy source failed", "source", name, "error", err)
				return unavailable(p.Name(), errs.ErrorOrNil())
			}
			p.logger.Warn("optional entropy source failed", "source", name, "error", err)
			continue
		}
		writeField(h, []byte(name))
		writeField(h, buf)
		contributed++
	}
	if contributed == 0 {
		return unavailable(p.Name(), errs.ErrorOrNil())
	}

	h.Sum(p.state[:0])
	p.reads++

	xof, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, p.state[:])
	if err != nil {
		return unavailable(p.Name(), err)
	}
	xof.Write([]byte("output"))
	if _, err := io.ReadFull(xof, out); err != nil {
		return unavailable(p.Name(), err)
	}

	ratchet, err := blake2b.New512(p.state[:])
	if err != nil {
		return unavailable(p.Name(), err)
	}
	ratchet.Write([]byte("ratchet"))
	ratchet.Sum(p.state[:0])
	p.incr("entropy", "pool_reads")
	return nil
}

func (p *Pool) incr(key ...string) {
	if p.metrics != nil {
		p.metrics.IncrCounter(key, 1)
	}
}

// writeField writes a length-prefixed field so that adjacent fields cannot
// be shifted into each other.
func writeField(w io.Writer, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	w.Write(n[:])
	w.Write(b)
}
