// Package drbg implements deterministic random bit generators seeded from
// package entropy.
//
// Every generator is explicit: there is no package-level default instance.
// Callers pick a flavor by Algorithm. The cryptographic flavors implement
// Secure; the fast PCG flavor only implements Generator, so code that asks
// for a Secure generator cannot be handed a non-cryptographic one.
//
// Generators are not safe for concurrent use. Wrap a shared instance with
// Locked, or give each goroutine its own instance via Fork.
package drbg

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xtding233/seedpool/internal/entropy"
)

// Algorithm names a generator construction.
type Algorithm string

const (
	// ChaCha20 is a fast-key-erasure generator over the ChaCha20 keystream.
	ChaCha20 Algorithm = "chacha20"
	// HMACSHA256 is NIST SP 800-90A HMAC_DRBG with SHA-256.
	HMACSHA256 Algorithm = "hmac-sha256"
	// HMACSHA512 is NIST SP 800-90A HMAC_DRBG with SHA-512.
	HMACSHA512 Algorithm = "hmac-sha512"
	// AESCTR is an SP 800-90A CTR_DRBG over AES-256.
	AESCTR Algorithm = "aes-256-ctr"
	// PCG is math/rand/v2's PCG. It is NOT cryptographically secure.
	PCG Algorithm = "pcg"

	// Default is the algorithm used when none is configured.
	Default = ChaCha20
)

// SeedBytes is how much seed material Fork and Reseeder draw per seeding.
// It covers the 256-bit entropy input plus a 128-bit nonce.
const SeedBytes = 48

var (
	// ErrUnknownAlgorithm is returned for names that ParseAlgorithm does not know.
	ErrUnknownAlgorithm = errors.New("unknown generator algorithm")
	// ErrInsecureAlgorithm is returned when a non-cryptographic algorithm is
	// requested where a secure generator is required.
	ErrInsecureAlgorithm = errors.New("algorithm is not cryptographically secure")
)

// Algorithms lists every known algorithm, secure ones first.
func Algorithms() []Algorithm {
	return []Algorithm{ChaCha20, HMACSHA256, HMACSHA512, AESCTR, PCG}
}

// Secure reports whether a is a cryptographic construction.
func (a Algorithm) Secure() bool {
	switch a {
	case ChaCha20, HMACSHA256, HMACSHA512, AESCTR:
		return true
	default:
		return false
	}
}

func (a Algorithm) String() string { return string(a) }

// ParseAlgorithm maps a configuration name to an Algorithm. The empty string
// selects Default.
func ParseAlgorithm(s string) (Algorithm, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Default, nil
	}
	for _, a := range Algorithms() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, s)
}

// Generator is the capability shared by every flavor.
type Generator interface {
	io.Reader

	// Next returns the next n bytes of output and advances the state.
	// It never fails and never blocks.
	Next(n int) []byte

	// Refresh mixes material into the state without discarding it. The
	// material is zeroed once consumed.
	Refresh(material entropy.SeedMaterial) error

	// Algorithm reports the construction behind the generator.
	Algorithm() Algorithm
}

// Secure is a Generator backed by a cryptographic construction. Only types
// in this package can implement it.
type Secure interface {
	Generator
	secure()
}

// New seeds a secure generator of the given algorithm. seed must hold at
// least entropy.MinSeedBytes bytes and is zeroed once consumed.
func New(alg Algorithm, seed entropy.SeedMaterial) (Secure, error) {
	switch alg {
	case ChaCha20:
		return asSecure(NewChaCha20(seed))
	case HMACSHA256, HMACSHA512:
		return asSecure(NewHMAC(alg, seed))
	case AESCTR:
		return asSecure(NewCTR(seed))
	case PCG:
		return nil, fmt.Errorf("%w: %s", ErrInsecureAlgorithm, alg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(alg))
	}
}

// asSecure keeps a failed constructor from producing a non-nil interface
// around a nil pointer.
func asSecure[T Secure](g T, err error) (Secure, error) {
	if err != nil {
		return nil, err
	}
	return g, nil
}
