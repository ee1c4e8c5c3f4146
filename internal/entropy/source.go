// Package entropy supplies seed material to the generators in package drbg.
//
// A Source either fills the requested buffer completely or fails with a
// *SourceUnavailableError. Nothing in this package substitutes a weaker
// source when a stronger one fails.
package entropy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// SeedMaterial is an opaque block of high-entropy bytes. Generators consume
// it exactly once and zero it afterwards.
type SeedMaterial []byte

// Wipe zeroes the material in place.
func (s SeedMaterial) Wipe() { clear(s) }

// Source produces raw entropy on request.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string
	// ReadEntropy fills p completely or returns an error. It may block.
	ReadEntropy(ctx context.Context, p []byte) error
}

// Gather reads n bytes of seed material from src.
func Gather(ctx context.Context, src Source, n int) (SeedMaterial, error) {
	if n < MinSeedBytes {
		return nil, &InsufficientEntropyError{Got: n, Want: MinSeedBytes}
	}
	if src == nil {
		return nil, unavailable("<nil>", errors.New("no entropy source configured"))
	}
	buf := make([]byte, n)
	if err := src.ReadEntropy(ctx, buf); err != nil {
		clear(buf)
		return nil, err
	}
	return SeedMaterial(buf), nil
}

type readerSource struct {
	name string
	mu   sync.Mutex
	r    io.Reader
}

// NewReaderSource adapts an io.Reader, such as a hardware RNG device, into a Source.
func NewReaderSource(name string, r io.Reader) Source {
	return &readerSource{name: name, r: r}
}

func (s *readerSource) Name() string { return s.name }

func (s *readerSource) ReadEntropy(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return unavailable(s.name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.ReadFull(s.r, p); err != nil {
		return unavailable(s.name, err)
	}
	return nil
}

type fileSource struct {
	name string
	path string
}

// NewFileSource reads entropy from path, opening it on every request.
func NewFileSource(name, path string) Source {
	return &fileSource{name: name, path: path}
}

func (s *fileSource) Name() string { return s.name }

func (s *fileSource) ReadEntropy(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return unavailable(s.name, err)
	}
	f, err := os.Open(s.path)
	if err != nil {
		return unavailable(s.name, err)
	}
	defer f.Close()
	if _, err := io.ReadFull(f, p); err != nil {
		return unavailable(s.name, fmt.Errorf("read %s: %w", s.path, err))
	}
	return nil
}

// FixedSource serves a predetermined byte sequence. It exists so tests can
// inject known seeds; production code sources seeds from the OS.
type FixedSource struct {
	mu   sync.Mutex
	data []byte
}

// NewFixedSource copies b and serves it in order.
func NewFixedSource(b []byte) *FixedSource {
	return &FixedSource{data: append([]byte(nil), b...)}
}

func (s *FixedSource) Name() string { return "fixed" }

// Remaining reports how many bytes are left.
func (s *FixedSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *FixedSource) ReadEntropy(_ context.Context, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) < len(p) {
		return unavailable("fixed", io.ErrUnexpectedEOF)
	}
	copy(p, s.data)
	clear(s.data[:len(p)])
	s.data = s.data[len(p):]
	return nil
}
