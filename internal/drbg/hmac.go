package drbg

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/xtding233/seedpool/internal/entropy"
)

// maxRequestBytes is the SP 800-90A per-request limit (2^19 bits) shared by
// the HMAC and CTR generators. Larger requests are split.
const maxRequestBytes = 1 << 16

// HMACGenerator is HMAC_DRBG from NIST SP 800-90A Rev. 1 §10.1.2. The
// personalization string is the algorithm name, so the SHA-256 and SHA-512
// variants never share state for the same seed.
type HMACGenerator struct {
	alg     Algorithm
	newHash func() hash.Hash
	k       []byte
	v       []byte
	// reseedCounter counts generate calls since the last (re)seed, as in
	// the standard. Reseeding policy lives in Reseeder.
	reseedCounter uint64
}

var _ Secure = (*HMACGenerator)(nil)

// NewHMAC instantiates HMAC_DRBG. alg must be HMACSHA256 or HMACSHA512.
func NewHMAC(alg Algorithm, seed entropy.SeedMaterial) (*HMACGenerator, error) {
	var newHash func() hash.Hash
	switch alg {
	case HMACSHA256:
		newHash = sha256.New
	case HMACSHA512:
		newHash = sha512.New
	default:
		return nil, fmt.Errorf("%w: %q is not an HMAC_DRBG", ErrUnknownAlgorithm, string(alg))
	}
	if err := entropy.CheckSeed(seed, entropy.MinSeedBytes); err != nil {
		return nil, err
	}
	defer seed.Wipe()
	return instantiateHMAC(alg, newHash, seed, []byte(alg)), nil
}

// instantiateHMAC is HMAC_DRBG_Instantiate with seed = entropy_input || nonce.
func instantiateHMAC(alg Algorithm, newHash func() hash.Hash, seed, personalization []byte) *HMACGenerator {
	size := newHash().Size()
	g := &HMACGenerator{
		alg:     alg,
		newHash: newHash,
		k:       make([]byte, size),
		v:       make([]byte, size),
	}
	for i := range g.v {
		g.v[i] = 0x01
	}
	g.update(seed, personalization)
	g.reseedCounter = 1
	return g
}

func (g *HMACGenerator) Algorithm() Algorithm { return g.alg }

func (g *HMACGenerator) secure() {}

func (g *HMACGenerator) Next(n int) []byte {
	out := make([]byte, max(n, 0))
	g.fill(out)
	return out
}

func (g *HMACGenerator) Read(p []byte) (int, error) {
	g.fill(p)
	return len(p), nil
}

// Refresh is the standard's Reseed: Update(entropy_input) on top of the
// current K and V.
func (g *HMACGenerator) Refresh(material entropy.SeedMaterial) error {
	if err := entropy.CheckSeed(material, entropy.MinSeedBytes); err != nil {
		return err
	}
	defer material.Wipe()
	g.update(material)
	g.reseedCounter = 1
	return nil
}

func (g *HMACGenerator) fill(p []byte) {
	for {
		chunk := min(len(p), maxRequestBytes)
		g.generate(p[:chunk])
		p = p[chunk:]
		if len(p) == 0 {
			return
		}
	}
}

// generate is HMAC_DRBG_Generate without additional input.
func (g *HMACGenerator) generate(out []byte) {
	mac := hmac.New(g.newHash, g.k)
	for off := 0; off < len(out); {
		mac.Reset()
		mac.Write(g.v)
		g.v = mac.Sum(g.v[:0])
		off += copy(out[off:], g.v)
	}
	g.update()
	g.reseedCounter++
}

// update is HMAC_DRBG_Update. The provided data is the concatenation of
// parts.
func (g *HMACGenerator) update(parts ...[]byte) {
	empty := true
	for _, p := range parts {
		if len(p) > 0 {
			empty = false
		}
	}
	for _, sep := range []byte{0x00, 0x01} {
		if sep == 0x01 && empty {
			return
		}
		mac := hmac.New(g.newHash, g.k)
		mac.Write(g.v)
		mac.Write([]byte{sep})
		for _, p := range parts {
			mac.Write(p)
		}
		g.k = mac.Sum(g.k[:0])

		mac = hmac.New(g.newHash, g.k)
		mac.Write(g.v)
		g.v = mac.Sum(g.v[:0])
	}
}
