package drbg

import (
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"

	"github.com/xtding233/seedpool/internal/entropy"
)

const (
	chachaSeedDomain    = "seedpool/chacha20/seed"
	chachaRefreshDomain = "seedpool/chacha20/refresh"

	// chachaRekeyEvery bounds how much output one key produces before it
	// is erased, even inside a single large request.
	chachaRekeyEvery = 1 << 20
)

var chachaNonce [chacha20.NonceSize]byte

// ChaCha20Generator is a fast-key-erasure generator: every request runs the
// ChaCha20 keystream under the current key, takes the first 32 bytes as the
// next key and returns the rest. The old key is gone before output leaves
// the generator, so compromising the state reveals nothing about earlier
// output.
type ChaCha20Generator struct {
	key [chacha20.KeySize]byte
}

var _ Secure = (*ChaCha20Generator)(nil)

// NewChaCha20 derives the initial key as BLAKE2b-256 of seed.
func NewChaCha20(seed entropy.SeedMaterial) (*ChaCha20Generator, error) {
	if err := entropy.CheckSeed(seed, entropy.MinSeedBytes); err != nil {
		return nil, err
	}
	defer seed.Wipe()

	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	writeField(h, []byte(chachaSeedDomain))
	writeField(h, seed)

	g := &ChaCha20Generator{}
	h.Sum(g.key[:0])
	return g, nil
}

func (g *ChaCha20Generator) Algorithm() Algorithm { return ChaCha20 }

func (g *ChaCha20Generator) secure() {}

func (g *ChaCha20Generator) Next(n int) []byte {
	out := make([]byte, max(n, 0))
	g.fill(out)
	return out
}

func (g *ChaCha20Generator) Read(p []byte) (int, error) {
	g.fill(p)
	return len(p), nil
}

// Refresh replaces the key with BLAKE2b-256 keyed by the old key over the
// material, so the new key depends on both.
func (g *ChaCha20Generator) Refresh(material entropy.SeedMaterial) error {
	if err := entropy.CheckSeed(material, entropy.MinSeedBytes); err != nil {
		return err
	}
	defer material.Wipe()

	h, err := blake2b.New256(g.key[:])
	if err != nil {
		return err
	}
	writeField(h, []byte(chachaRefreshDomain))
	writeField(h, material)
	h.Sum(g.key[:0])
	return nil
}

func (g *ChaCha20Generator) fill(p []byte) {
	// an empty request still steps the key, so Next(0) is not a no-op
	for {
		chunk := min(len(p), chachaRekeyEvery)
		c, err := chacha20.NewUnauthenticatedCipher(g.key[:], chachaNonce[:])
		if err != nil {
			// key and nonce sizes are constants
			panic("drbg: chacha20: " + err.Error())
		}
		var next [chacha20.KeySize]byte
		c.XORKeyStream(next[:], next[:])
		out := p[:chunk]
		clear(out)
		c.XORKeyStream(out, out)
		g.key = next
		clear(next[:])

		p = p[chunk:]
		if len(p) == 0 {
			return
		}
	}
}
