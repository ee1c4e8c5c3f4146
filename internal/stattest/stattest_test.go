package stattest

import (
	"bytes"
	"io"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, seed byte, n int) []byte {
	t.Helper()
	var key [32]byte
	key[0] = seed
	buf := make([]byte, n)
	_, err := rand.NewChaCha8(key).Read(buf)
	require.NoError(t, err)
	return buf
}

func bitString(s string) []byte {
	bits := make([]byte, len(s))
	for i, c := range s {
		if c == '1' {
			bits[i] = 1
		}
	}
	return bits
}

func TestIncompleteGamma(t *testing.T) {
	for _, x := range []float64{0.1, 1, 2.5, 10, 40} {
		require.InDelta(t, math.Exp(-x), igamc(1, x), 1e-12, "Q(1,%v)", x)
		require.InDelta(t, math.Erfc(math.Sqrt(x)), igamc(0.5, x), 1e-12, "Q(0.5,%v)", x)
	}
	require.Equal(t, 1.0, igamc(3, 0))
}

func TestChiSquareMedian(t *testing.T) {
	// the median of χ²(255) is close to 254.33
	require.InDelta(t, 0.5, chiSquarePValue(254.33, 255), 0.01)
}

// Worked examples from NIST SP 800-22 §2.1.4 and §2.3.4.
func TestMonobitWorkedExample(t *testing.T) {
	res := monobit(bitString("1011010101"))
	require.InDelta(t, 0.527089, res.PValue, 1e-6)
}

func TestRunsWorkedExample(t *testing.T) {
	res := runs(bitString("1001101011"))
	require.Equal(t, 7.0, res.Statistic)
	require.InDelta(t, 0.147232, res.PValue, 1e-6)
}

func TestRunsFrequencyPrerequisite(t *testing.T) {
	res, err := Runs(bytes.Repeat([]byte{0xff}, 64))
	require.NoError(t, err)
	require.Zero(t, res.PValue)
}

func TestBitsOrder(t *testing.T) {
	require.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 1}, bitsOf([]byte{0x81}))
}

func TestByteFrequency(t *testing.T) {
	res, err := ByteFrequency(randomBytes(t, 1, 1<<16))
	require.NoError(t, err)
	require.True(t, res.Pass(0.001), res.String())

	res, err = ByteFrequency(bytes.Repeat([]byte{0x42}, 1<<12))
	require.NoError(t, err)
	require.Less(t, res.PValue, 1e-10)

	_, err = ByteFrequency(make([]byte, 100))
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestSerialCorrelation(t *testing.T) {
	res, err := SerialCorrelation(randomBytes(t, 2, 1<<14))
	require.NoError(t, err)
	require.True(t, res.Pass(0.001), res.String())

	ramp := make([]byte, 1<<14)
	for i := range ramp {
		ramp[i] = byte(i)
	}
	res, err = SerialCorrelation(ramp)
	require.NoError(t, err)
	require.Greater(t, res.Statistic, 0.9)
	require.Less(t, res.PValue, 1e-10)

	res, err = SerialCorrelation(make([]byte, 200))
	require.NoError(t, err)
	require.Zero(t, res.PValue)
}

func TestOverlap(t *testing.T) {
	a := randomBytes(t, 3, 4096)
	b := randomBytes(t, 4, 4096)
	require.False(t, Overlap(a, b, 16))

	c := append(randomBytes(t, 5, 100), a[1000:1016]...)
	require.True(t, Overlap(a, c, 16))
	require.False(t, Overlap(a, b[:8], 16))
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 1, 3, 2})
	require.Equal(t, 4, s.N)
	require.InDelta(t, 2.5, s.Mean, 1e-12)
	require.InDelta(t, 1.25, s.Var, 1e-12)
	require.InDelta(t, 2.5, s.P50, 1e-12)
	require.Equal(t, 1.0, s.Min)
	require.Equal(t, 4.0, s.Max)

	require.Equal(t, Summary{}, Summarize(nil))
	require.Equal(t, 7.0, Summarize([]float64{7}).P99)
}

func TestSummarizeBytesUniform(t *testing.T) {
	s := SummarizeBytes(randomBytes(t, 6, 1<<16))
	require.InDelta(t, 127.5, s.Mean, 2)
	require.InDelta(t, (256*256-1)/12.0, s.Var, 200)
}

func TestBattery(t *testing.T) {
	rep, err := Battery(randomBytes(t, 7, 1<<16), 0.001)
	require.NoError(t, err)
	require.Len(t, rep.Results, 4)
	require.True(t, rep.Passed(), "failed: %v", rep.Failed())

	rep, err = Battery(make([]byte, 1<<12), 0)
	require.NoError(t, err)
	require.Equal(t, DefaultAlpha, rep.Alpha)
	require.False(t, rep.Passed())
	require.Contains(t, rep.Failed(), "byte_frequency")

	_, err = Battery([]byte{1, 2, 3}, 0.01)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestRunTrials(t *testing.T) {
	rep, err := RunTrials(100, 4096, func(i int) io.Reader {
		var key [32]byte
		key[0], key[1] = byte(i), 0xa5
		return rand.NewChaCha8(key)
	}, 0.01)
	require.NoError(t, err)
	require.Equal(t, 100, rep.Trials)
	require.InDelta(t, 0.96, rep.MinProportion, 0.001)
	require.True(t, rep.Passed(), "passes: %v", rep.Passes)
	require.InDelta(t, 0.5, rep.PValues["monobit"].Mean, 0.1)

	rep, err = RunTrials(10, 4096, func(int) io.Reader {
		return bytes.NewReader(make([]byte, 4096))
	}, 0.01)
	require.NoError(t, err)
	require.False(t, rep.Passed())
	require.Zero(t, rep.Proportion("byte_frequency"))
}

func TestRunTrialsShortReader(t *testing.T) {
	_, err := RunTrials(2, 4096, func(int) io.Reader {
		return bytes.NewReader(make([]byte, 10))
	}, 0.01)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
