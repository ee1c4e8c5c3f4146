// Package sample turns generator output into values: bounded integers,
// floats, coin flips, shuffles and weighted draws.
//
// Every function takes the generator explicitly as an io.Reader. Pass a
// *drbg.Reseeder or a drbg.Secure generator for anything security relevant,
// and a drbg.FastGenerator only for replayable simulations.
package sample

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

var (
	ErrInvalidProb   = errors.New("invalid probability p; must be 0..1")
	ErrInvalidBound  = errors.New("invalid bound")
	ErrNoWeights     = errors.New("no weighted entries")
	ErrInvalidWeight = errors.New("invalid weight")
)

// Bytes reads n bytes from r.
func Bytes(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrInvalidBound, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Uint64 reads one uniformly distributed 64-bit word.
func Uint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// uint64N returns a uniform value in [0, n) by rejection: words below
// 2^64 mod n are redrawn so every residue is equally likely.
func uint64N(r io.Reader, n uint64) (uint64, error) {
	if n&(n-1) == 0 {
		v, err := Uint64(r)
		return v & (n - 1), err
	}
	threshold := -n % n
	for {
		v, err := Uint64(r)
		if err != nil {
			return 0, err
		}
		if v >= threshold {
			return v % n, nil
		}
	}
}

// IntN returns a uniform integer in [0, n). n must be positive.
func IntN(r io.Reader, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: n=%d must be > 0", ErrInvalidBound, n)
	}
	v, err := uint64N(r, uint64(n))
	return int(v), err
}

// IntRange returns a uniform integer in [lo, hi], both ends included.
func IntRange(r io.Reader, lo, hi int) (int, error) {
	if hi < lo {
		return 0, fmt.Errorf("%w: empty range [%d, %d]", ErrInvalidBound, lo, hi)
	}
	span := uint64(hi) - uint64(lo) + 1
	if span == 0 {
		// the full int range
		v, err := Uint64(r)
		return int(v), err
	}
	v, err := uint64N(r, span)
	if err != nil {
		return 0, err
	}
	return lo + int(v), nil
}

// Float64 returns a uniform float in [0, 1) with 53 random bits.
func Float64(r io.Reader) (float64, error) {
	v, err := Uint64(r)
	if err != nil {
		return 0, err
	}
	return float64(v>>11) / (1 << 53), nil
}

// Shuffle permutes s in place (Fisher-Yates).
func Shuffle[T any](r io.Reader, s []T) error {
	for i := len(s) - 1; i > 0; i-- {
		j, err := IntN(r, i+1)
		if err != nil {
			return err
		}
		s[i], s[j] = s[j], s[i]
	}
	return nil
}

func validateProb(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return ErrInvalidProb
	}
	if p < 0 || p > 1 {
		return ErrInvalidProb
	}
	return nil
}

// Bernoulli returns true with probability p.
// p == 0 never hits and p == 1 always hits without consuming output.
func Bernoulli(r io.Reader, p float64) (bool, error) {
	if err := validateProb(p); err != nil {
		return false, err
	}
	if p <= 0 {
		return false, nil
	}
	if p >= 1 {
		return true, nil
	}
	f, err := Float64(r)
	if err != nil {
		return false, err
	}
	return f < p, nil
}
