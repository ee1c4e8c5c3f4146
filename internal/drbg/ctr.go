package drbg

import (
	"crypto/aes"
	"crypto/cipher"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/xtding233/seedpool/internal/entropy"
)

const (
	ctrKeyLen  = 32
	ctrSeedLen = ctrKeyLen + aes.BlockSize

	ctrSeedDomain    = "seedpool/aes-256-ctr/seed"
	ctrRefreshDomain = "seedpool/aes-256-ctr/refresh"
)

// CTRGenerator is CTR_DRBG from NIST SP 800-90A Rev. 1 §10.2.1 over AES-256.
// Seed material of any length is condensed to seedlen bytes with a BLAKE2b
// XOF in place of the standard's Block_Cipher_df.
type CTRGenerator struct {
	block cipher.Block
	key   [ctrKeyLen]byte
	v     [aes.BlockSize]byte

	reseedCounter uint64
}

var _ Secure = (*CTRGenerator)(nil)

// NewCTR instantiates the AES-256 CTR_DRBG.
func NewCTR(seed entropy.SeedMaterial) (*CTRGenerator, error) {
	if err := entropy.CheckSeed(seed, entropy.MinSeedBytes); err != nil {
		return nil, err
	}
	defer seed.Wipe()

	provided, err := deriveSeed(ctrSeedDomain, seed)
	if err != nil {
		return nil, err
	}
	g := &CTRGenerator{}
	if err := g.rekey(); err != nil {
		return nil, err
	}
	g.update(&provided)
	g.reseedCounter = 1
	return g, nil
}

func (g *CTRGenerator) Algorithm() Algorithm { return AESCTR }

func (g *CTRGenerator) secure() {}

func (g *CTRGenerator) Next(n int) []byte {
	out := make([]byte, max(n, 0))
	g.fill(out)
	return out
}

func (g *CTRGenerator) Read(p []byte) (int, error) {
	g.fill(p)
	return len(p), nil
}

// Refresh is CTR_DRBG_Reseed: the derived material is XORed into fresh
// output of the current state.
func (g *CTRGenerator) Refresh(material entropy.SeedMaterial) error {
	if err := entropy.CheckSeed(material, entropy.MinSeedBytes); err != nil {
		return err
	}
	defer material.Wipe()

	provided, err := deriveSeed(ctrRefreshDomain, material)
	if err != nil {
		return err
	}
	g.update(&provided)
	g.reseedCounter = 1
	return nil
}

func (g *CTRGenerator) fill(p []byte) {
	for {
		chunk := min(len(p), maxRequestBytes)
		g.generate(p[:chunk])
		p = p[chunk:]
		if len(p) == 0 {
			return
		}
	}
}

func (g *CTRGenerator) generate(out []byte) {
	var blk [aes.BlockSize]byte
	for off := 0; off < len(out); {
		incrementCounter(&g.v)
		g.block.Encrypt(blk[:], g.v[:])
		off += copy(out[off:], blk[:])
	}
	clear(blk[:])
	var zero [ctrSeedLen]byte
	g.update(&zero)
	g.reseedCounter++
}

// update is CTR_DRBG_Update.
func (g *CTRGenerator) update(provided *[ctrSeedLen]byte) {
	var temp [ctrSeedLen]byte
	for off := 0; off < ctrSeedLen; off += aes.BlockSize {
		incrementCounter(&g.v)
		g.block.Encrypt(temp[off:off+aes.BlockSize], g.v[:])
	}
	for i := range temp {
		temp[i] ^= provided[i]
	}
	copy(g.key[:], temp[:ctrKeyLen])
	copy(g.v[:], temp[ctrKeyLen:])
	clear(temp[:])
	clear(provided[:])
	if err := g.rekey(); err != nil {
		panic("drbg: aes: " + err.Error())
	}
}

func (g *CTRGenerator) rekey() error {
	block, err := aes.NewCipher(g.key[:])
	if err != nil {
		return err
	}
	g.block = block
	return nil
}

// incrementCounter adds one to v as a big-endian 128-bit integer.
func incrementCounter(v *[aes.BlockSize]byte) {
	for i := len(v) - 1; i >= 0; i-- {
		v[i]++
		if v[i] != 0 {
			return
		}
	}
}

func deriveSeed(domain string, material []byte) ([ctrSeedLen]byte, error) {
	var out [ctrSeedLen]byte
	xof, err := blake2b.NewXOF(ctrSeedLen, nil)
	if err != nil {
		return out, err
	}
	writeField(xof, []byte(domain))
	writeField(xof, material)
	if _, err := io.ReadFull(xof, out[:]); err != nil {
		return out, err
	}
	return out, nil
}
