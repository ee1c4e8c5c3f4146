package stattest

import (
	"math"
	"slices"
)

// Summary describes a sample of observations.
type Summary struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	Var    float64 `json:"var"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
}

// Summarize computes mean, population variance and percentiles of xs.
func Summarize(xs []float64) Summary {
	n := len(xs)
	if n == 0 {
		return Summary{}
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	mean := sum / float64(n)

	var acc float64
	for _, v := range xs {
		d := v - mean
		acc += d * d
	}
	variance := acc / float64(n)

	cp := slices.Clone(xs)
	slices.Sort(cp)
	percentile := func(p float64) float64 {
		if n == 1 || p <= 0 {
			return cp[0]
		}
		if p >= 1 {
			return cp[n-1]
		}
		pos := p * float64(n-1)
		i := int(math.Floor(pos))
		f := pos - float64(i)
		if i+1 >= n {
			return cp[i]
		}
		return cp[i]*(1-f) + cp[i+1]*f
	}

	return Summary{
		N:      n,
		Mean:   mean,
		Var:    variance,
		StdDev: math.Sqrt(variance),
		Min:    cp[0],
		Max:    cp[n-1],
		P50:    percentile(0.50),
		P90:    percentile(0.90),
		P99:    percentile(0.99),
	}
}

// SummarizeBytes summarizes byte values. Uniform bytes have mean 127.5 and
// variance (256²-1)/12.
func SummarizeBytes(data []byte) Summary {
	xs := make([]float64, len(data))
	for i, b := range data {
		xs[i] = float64(b)
	}
	return Summarize(xs)
}
