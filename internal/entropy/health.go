package entropy

import (
	"context"
	"fmt"
	"math"
	"sync"
)

const (
	// DefaultHealthWindow is the Adaptive Proportion Test window for
	// non-binary samples.
	DefaultHealthWindow = 512
	// DefaultMinEntropy assumes full entropy per raw byte, as for a
	// conditioned OS source.
	DefaultMinEntropy = 8.0
	// healthAlphaLog2 is the false positive rate of both tests, 2^-40.
	healthAlphaLog2 = 40
)

// HealthConfig tunes the continuous health tests.
type HealthConfig struct {
	// MinEntropy is the assessed min-entropy of one raw byte, in bits.
	// Zero means DefaultMinEntropy.
	MinEntropy float64
	// Window is the Adaptive Proportion Test window. Zero means DefaultHealthWindow.
	Window int
}

// HealthSource runs the Repetition Count Test and the Adaptive Proportion
// Test over every byte its underlying source produces. Once a test fails the
// source stays failed.
type HealthSource struct {
	src Source

	rctCutoff int
	aptCutoff int
	window    int

	mu sync.Mutex
	// repetition count test
	rctLast  byte
	rctCount int
	// adaptive proportion test
	aptRef   byte
	aptCount int
	aptSeen  int
	started  bool
	failed   error
}

// HealthChecked wraps src with continuous health tests.
func HealthChecked(src Source, cfg HealthConfig) *HealthSource {
	h := cfg.MinEntropy
	if h <= 0 || h > DefaultMinEntropy {
		h = DefaultMinEntropy
	}
	w := cfg.Window
	if w <= 1 {
		w = DefaultHealthWindow
	}
	return &HealthSource{
		src:       src,
		rctCutoff: RepetitionCutoff(h),
		aptCutoff: ProportionCutoff(w, h),
		window:    w,
	}
}

func (s *HealthSource) Name() string { return s.src.Name() }

func (s *HealthSource) ReadEntropy(ctx context.Context, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed != nil {
		return unavailable(s.Name(), s.failed)
	}
	if err := s.src.ReadEntropy(ctx, p); err != nil {
		return err
	}
	if err := s.check(p); err != nil {
		clear(p)
		s.failed = err
		return unavailable(s.Name(), err)
	}
	return nil
}

func (s *HealthSource) check(p []byte) error {
	for _, b := range p {
		if !s.started {
			s.started = true
			s.rctLast, s.rctCount = b, 1
			s.aptRef, s.aptCount, s.aptSeen = b, 1, 1
			continue
		}

		if b == s.rctLast {
			s.rctCount++
			if s.rctCount >= s.rctCutoff {
				return fmt.Errorf("%w: byte %#02x repeated %d times", ErrHealthTest, b, s.rctCount)
			}
		} else {
			s.rctLast, s.rctCount = b, 1
		}

		if s.aptSeen == s.window {
			s.aptRef, s.aptCount, s.aptSeen = b, 1, 1
			continue
		}
		s.aptSeen++
		if b == s.aptRef {
			s.aptCount++
			if s.aptCount >= s.aptCutoff {
				return fmt.Errorf("%w: byte %#02x seen %d times in a window of %d", ErrHealthTest, b, s.aptCount, s.window)
			}
		}
	}
	return nil
}

// RepetitionCutoff is the Repetition Count Test cutoff 1 + ceil(-log2(alpha)/h).
func RepetitionCutoff(h float64) int {
	return 1 + int(math.Ceil(healthAlphaLog2/h))
}

// ProportionCutoff returns the smallest count C such that a window of
// independent bytes with min-entropy h reaches C occurrences of its first
// byte with probability at most alpha.
func ProportionCutoff(window int, h float64) int {
	p := math.Exp2(-h)
	alpha := math.Exp2(-healthAlphaLog2)
	n := window - 1
	tail := 0.0
	for k := n; k >= 0; k-- {
		tail += binomialPMF(n, k, p)
		if tail > alpha {
			// P(X >= k+1) <= alpha; the first byte itself counts once.
			c := k + 2
			if c > window {
				c = window
			}
			return c
		}
	}
	return window
}

func binomialPMF(n, k int, p float64) float64 {
	lnN, _ := math.Lgamma(float64(n + 1))
	lnK, _ := math.Lgamma(float64(k + 1))
	lnNK, _ := math.Lgamma(float64(n - k + 1))
	return math.Exp(lnN - lnK - lnNK + float64(k)*math.Log(p) + float64(n-k)*math.Log1p(-p))
}
