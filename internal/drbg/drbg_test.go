package drbg

import (
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xtding233/seedpool/internal/entropy"
	"github.com/xtding233/seedpool/internal/stattest"
)

var secureAlgorithms = []Algorithm{ChaCha20, HMACSHA256, HMACSHA512, AESCTR}

// counting returns n bytes 0, 1, 2, ...
func counting(n int) entropy.SeedMaterial {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func mustNew(t *testing.T, alg Algorithm, seed []byte) Secure {
	t.Helper()
	g, err := New(alg, append(entropy.SeedMaterial(nil), seed...))
	require.NoError(t, err)
	require.Equal(t, alg, g.Algorithm())
	return g
}

func TestKnownAnswers(t *testing.T) {
	cases := []struct {
		alg  Algorithm
		want [2]string
	}{
		{ChaCha20, [2]string{"bc19bbedec761c354d11a6a98aafbbdc", "61f29a53e422bf3a5acb485574e0c56e"}},
		{HMACSHA256, [2]string{"2d85ad167afadb3c27ccbd775be25f89", "66770be142a042b918fe3e9a2ae5447a"}},
		{HMACSHA512, [2]string{"f229d441cdf2e08c2961f2aef69ae10b", "e71069f9dc87894915e13d15369e73b4"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.alg), func(t *testing.T) {
			g := mustNew(t, tc.alg, counting(32))
			require.Equal(t, tc.want[0], hex.EncodeToString(g.Next(16)))
			require.Equal(t, tc.want[1], hex.EncodeToString(g.Next(16)))
		})
	}
}

func TestChaCha20RefreshKnownAnswer(t *testing.T) {
	g := mustNew(t, ChaCha20, counting(32))
	require.NoError(t, g.Refresh(bytes.Repeat([]byte{0xff}, 32)))
	require.Equal(t, "ff35a044e60d510ddb9f69fe5c5c40ee", hex.EncodeToString(g.Next(16)))
}

// HMAC_DRBG SHA-256 vector from NIST CAVP (no reseed, no personalization,
// no additional input, COUNT 0).
func TestHMACDRBGNISTVector(t *testing.T) {
	seed := append(
		unhex(t, "ca851911349384bffe89de1cbdc46e6831e44d34a4fb935ee285dd14b71a7488"),
		unhex(t, "659ba96c601dc69fc902940805ec0ca8")...,
	)
	g := instantiateHMAC(HMACSHA256, sha256.New, seed, nil)
	g.Next(128)
	want := "e528e9abf2dece54d47c7e75e5fe302149f817ea9fb4bee6f4199697d04d5b89" +
		"d54fbb978a15b5c443c9ec21036d2460b6f73ebad0dc2aba6e624abf07745bc1" +
		"07694bb7547bb0995f70de25d6b29e2d3011bb19d27676c07162c8b5ccde0668" +
		"961df86803482cb37ed6d5c0bb8d50cf1f50d476aa0458bdaba806f48be9dcb8"
	require.Equal(t, want, hex.EncodeToString(g.Next(128)))
	require.EqualValues(t, 3, g.reseedCounter)
}

func TestNewRejectsShortSeed(t *testing.T) {
	for _, alg := range secureAlgorithms {
		t.Run(string(alg), func(t *testing.T) {
			g, err := New(alg, counting(16))
			require.ErrorIs(t, err, entropy.ErrInsufficientEntropy)
			require.Nil(t, g)

			var ie *entropy.InsufficientEntropyError
			require.True(t, errors.As(err, &ie))
			require.Equal(t, 16, ie.Got)
			require.Equal(t, entropy.MinSeedBytes, ie.Want)
		})
	}
	_, err := New(ChaCha20, nil)
	require.ErrorIs(t, err, entropy.ErrInsufficientEntropy)
}

func TestNewWipesSeed(t *testing.T) {
	for _, alg := range secureAlgorithms {
		seed := counting(48)
		_, err := New(alg, seed)
		require.NoError(t, err)
		require.Equal(t, make([]byte, 48), []byte(seed), alg)
	}
}

func TestNewAlgorithmErrors(t *testing.T) {
	g, err := New(PCG, counting(32))
	require.ErrorIs(t, err, ErrInsecureAlgorithm)
	require.Nil(t, g)

	g, err = New("md5", counting(32))
	require.ErrorIs(t, err, ErrUnknownAlgorithm)
	require.Nil(t, g)

	_, err = NewHMAC(AESCTR, counting(32))
	require.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestDeterminism(t *testing.T) {
	sizes := []int{0, 1, 16, 100, 70000, 33}
	for _, alg := range secureAlgorithms {
		t.Run(string(alg), func(t *testing.T) {
			a := mustNew(t, alg, counting(48))
			b := mustNew(t, alg, counting(48))
			for _, n := range sizes {
				require.Equal(t, a.Next(n), b.Next(n), "n=%d", n)
			}
			require.NoError(t, a.Refresh(bytes.Repeat([]byte{7}, 40)))
			require.NoError(t, b.Refresh(bytes.Repeat([]byte{7}, 40)))
			require.Equal(t, a.Next(64), b.Next(64))
		})
	}
}

func TestConsecutiveOutputsDiffer(t *testing.T) {
	seed := bytes.Repeat([]byte{0x5c}, 32)
	for _, alg := range secureAlgorithms {
		t.Run(string(alg), func(t *testing.T) {
			g := mustNew(t, alg, seed)
			first, second := g.Next(16), g.Next(16)
			require.Len(t, first, 16)
			require.NotEqual(t, first, second)
			require.NotEqual(t, seed[:16], first)
			require.NotEqual(t, seed[:16], second)
		})
	}
}

func TestNextNonPositive(t *testing.T) {
	g := mustNew(t, ChaCha20, counting(32))
	require.Equal(t, []byte{}, g.Next(0))
	require.Equal(t, []byte{}, g.Next(-5))

	n, err := g.Read(nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestEmptyRequestStepsState(t *testing.T) {
	for _, alg := range secureAlgorithms {
		t.Run(string(alg), func(t *testing.T) {
			stepped := mustNew(t, alg, counting(32))
			fresh := mustNew(t, alg, counting(32))
			require.Empty(t, stepped.Next(0))
			require.NotEqual(t, fresh.Next(16), stepped.Next(16))
		})
	}
}

func TestDistinctSeedsDoNotOverlap(t *testing.T) {
	for _, alg := range secureAlgorithms {
		t.Run(string(alg), func(t *testing.T) {
			s1 := counting(32)
			s2 := counting(32)
			s2[31] ^= 0x01
			a := mustNew(t, alg, s1).Next(1 << 15)
			b := mustNew(t, alg, s2).Next(1 << 15)
			require.False(t, stattest.Overlap(a, b, 16))
		})
	}
}

func TestRefresh(t *testing.T) {
	material := bytes.Repeat([]byte{0xa7}, 32)
	for _, alg := range secureAlgorithms {
		t.Run(string(alg), func(t *testing.T) {
			plain := mustNew(t, alg, counting(32))
			refreshed := mustNew(t, alg, counting(32))
			m := append(entropy.SeedMaterial(nil), material...)
			require.NoError(t, refreshed.Refresh(m))
			require.Equal(t, make([]byte, 32), []byte(m), "material must be wiped")

			out := refreshed.Next(32)
			require.NotEqual(t, plain.Next(32), out)

			// refresh keeps the old state: seeding from the material alone differs
			fresh := mustNew(t, alg, material)
			require.NotEqual(t, fresh.Next(32), out)
		})
	}
}

func TestRefreshRejectsShortMaterial(t *testing.T) {
	for _, alg := range secureAlgorithms {
		g := mustNew(t, alg, counting(32))
		before := mustNew(t, alg, counting(32))
		err := g.Refresh(counting(31))
		require.ErrorIs(t, err, entropy.ErrInsufficientEntropy, alg)
		require.Equal(t, before.Next(16), g.Next(16), "failed refresh must not touch state")
	}
}

func TestOutputStatistics(t *testing.T) {
	for i, alg := range secureAlgorithms {
		t.Run(string(alg), func(t *testing.T) {
			seed := bytes.Repeat([]byte{byte(i + 1)}, 48)
			rep, err := stattest.Battery(mustNew(t, alg, seed).Next(1<<16), 1e-4)
			require.NoError(t, err)
			require.True(t, rep.Passed(), "failed: %v", rep.Failed())
		})
	}
}

func TestLargeRequests(t *testing.T) {
	for _, alg := range secureAlgorithms {
		t.Run(string(alg), func(t *testing.T) {
			g := mustNew(t, alg, counting(32))
			buf := make([]byte, chachaRekeyEvery+maxRequestBytes+17)
			n, err := g.Read(buf)
			require.NoError(t, err)
			require.Equal(t, len(buf), n)
			half := len(buf) / 2
			require.False(t, stattest.Overlap(buf[:1<<16], buf[half:half+1<<16], 16))
			require.False(t, bytes.Equal(buf[len(buf)-32:], make([]byte, 32)))
		})
	}
}

func TestIncrementCounter(t *testing.T) {
	var v [aes.BlockSize]byte
	for i := range v {
		v[i] = 0xff
	}
	incrementCounter(&v)
	require.Equal(t, [aes.BlockSize]byte{}, v)

	v[15], v[14] = 0xff, 0x00
	incrementCounter(&v)
	require.Equal(t, byte(0x01), v[14])
	require.Equal(t, byte(0x00), v[15])
}

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("")
	require.NoError(t, err)
	require.Equal(t, Default, alg)

	alg, err = ParseAlgorithm(" HMAC-SHA256 ")
	require.NoError(t, err)
	require.Equal(t, HMACSHA256, alg)

	_, err = ParseAlgorithm("mt19937")
	require.ErrorIs(t, err, ErrUnknownAlgorithm)

	for _, a := range Algorithms() {
		require.Equal(t, a != PCG, a.Secure(), a)
	}
}

func TestFastGenerator(t *testing.T) {
	a, b := NewFast(42), NewFast(42)
	require.Equal(t, a.Next(100), b.Next(100))
	require.Equal(t, a.Uint64(), b.Uint64())
	require.NotEqual(t, NewFast(43).Next(16), NewFast(42).Next(16))
	require.Equal(t, PCG, a.Algorithm())

	var g Generator = a
	_, ok := g.(Secure)
	require.False(t, ok, "PCG must not satisfy Secure")

	require.Error(t, a.Refresh(nil))
	require.NoError(t, a.Refresh(entropy.SeedMaterial("extra")))
	require.NotEqual(t, a.Next(16), b.Next(16))
}

func TestLockedConcurrentUse(t *testing.T) {
	l := NewLocked(mustNew(t, ChaCha20, counting(32)))
	require.Equal(t, ChaCha20, l.Algorithm())

	const workers, calls = 8, 200
	out := make([][]byte, workers*calls)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range calls {
				if c%50 == 0 && w == 0 {
					_ = l.Refresh(counting(32))
				}
				out[w*calls+c] = l.Next(16)
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, len(out))
	for _, b := range out {
		require.False(t, seen[string(b)], "duplicate output block")
		seen[string(b)] = true
	}
}

func TestFork(t *testing.T) {
	parent := mustNew(t, HMACSHA256, counting(48))
	c1, err := Fork(parent, ChaCha20)
	require.NoError(t, err)
	c2, err := Fork(parent, ChaCha20)
	require.NoError(t, err)
	require.False(t, stattest.Overlap(c1.Next(4096), c2.Next(4096), 16))

	// forking is deterministic in the parent's state
	x, err := Fork(mustNew(t, HMACSHA256, counting(48)), AESCTR)
	require.NoError(t, err)
	y, err := Fork(mustNew(t, HMACSHA256, counting(48)), AESCTR)
	require.NoError(t, err)
	require.Equal(t, AESCTR, x.Algorithm())
	require.Equal(t, x.Next(32), y.Next(32))

	_, err = Fork(parent, PCG)
	require.ErrorIs(t, err, ErrInsecureAlgorithm)
}
