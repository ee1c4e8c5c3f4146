package drbg

import (
	"encoding/binary"
	"errors"
	"math/rand/v2"

	"golang.org/x/crypto/blake2b"

	"github.com/xtding233/seedpool/internal/entropy"
)

// FastGenerator is a replayable, non-cryptographic generator (PCG). Use it
// for simulations and tests that need a scalar seed. It deliberately does
// not implement Secure.
type FastGenerator struct {
	pcg *rand.PCG
}

var _ Generator = (*FastGenerator)(nil)

// NewFast seeds a PCG from a 64-bit integer.
func NewFast(seed uint64) *FastGenerator {
	return &FastGenerator{pcg: rand.NewPCG(seed, 0)}
}

func (g *FastGenerator) Algorithm() Algorithm { return PCG }

// Uint64 returns the next raw PCG word.
func (g *FastGenerator) Uint64() uint64 { return g.pcg.Uint64() }

func (g *FastGenerator) Next(n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	out := make([]byte, n)
	g.fill(out)
	return out
}

func (g *FastGenerator) Read(p []byte) (int, error) {
	g.fill(p)
	return len(p), nil
}

// Refresh folds material and the current PCG output into a new PCG seed.
// Any non-empty material is accepted; this flavor makes no entropy claims.
func (g *FastGenerator) Refresh(material entropy.SeedMaterial) error {
	if len(material) == 0 {
		return errors.New("refresh material is empty")
	}
	defer material.Wipe()

	var cur [16]byte
	binary.LittleEndian.PutUint64(cur[:8], g.pcg.Uint64())
	binary.LittleEndian.PutUint64(cur[8:], g.pcg.Uint64())
	h, err := blake2b.New256(cur[:])
	if err != nil {
		return err
	}
	h.Write(material)
	sum := h.Sum(nil)
	g.pcg.Seed(binary.LittleEndian.Uint64(sum[:8]), binary.LittleEndian.Uint64(sum[8:16]))
	return nil
}

func (g *FastGenerator) fill(p []byte) {
	var word [8]byte
	for len(p) >= 8 {
		binary.LittleEndian.PutUint64(p, g.pcg.Uint64())
		p = p[8:]
	}
	if len(p) > 0 {
		binary.LittleEndian.PutUint64(word[:], g.pcg.Uint64())
		copy(p, word[:])
	}
}
