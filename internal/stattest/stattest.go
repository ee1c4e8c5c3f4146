// Package stattest runs statistical sanity checks over generator output.
//
// The checks catch gross defects such as a stuck source, a biased mapping
// or a broken state update. Passing them says nothing about cryptographic
// strength.
package stattest

import (
	"errors"
	"fmt"
	"math"
)

// DefaultAlpha is the significance level used when none is given.
const DefaultAlpha = 0.01

// ErrInsufficientData is returned when a sample is too short for a check.
var ErrInsufficientData = errors.New("sample too short")

// Result is the outcome of one check.
type Result struct {
	Name      string  `json:"name"`
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
}

// Pass reports whether the null hypothesis of uniform random data survives
// at significance level alpha.
func (r Result) Pass(alpha float64) bool { return r.PValue >= alpha }

func (r Result) String() string {
	return fmt.Sprintf("%s: statistic=%.4f p=%.6f", r.Name, r.Statistic, r.PValue)
}

func needBytes(name string, data []byte, want int) error {
	if len(data) < want {
		return fmt.Errorf("%s: %w: got %d bytes, need %d", name, ErrInsufficientData, len(data), want)
	}
	return nil
}

// igamc is the regularized upper incomplete gamma function Q(a, x).
func igamc(a, x float64) float64 {
	if x <= 0 || a <= 0 {
		return 1
	}
	if x < a+1 {
		return 1 - gammaSeries(a, x)
	}
	return gammaFraction(a, x)
}

func gammaSeries(a, x float64) float64 {
	lg, _ := math.Lgamma(a)
	ap := a
	del := 1 / a
	sum := del
	for range 1000 {
		ap++
		del *= x / ap
		sum += del
		if math.Abs(del) < math.Abs(sum)*1e-15 {
			break
		}
	}
	return sum * math.Exp(-x+a*math.Log(x)-lg)
}

// gammaFraction evaluates Q(a, x) by its continued fraction (modified Lentz).
func gammaFraction(a, x float64) float64 {
	const tiny = 1e-300
	lg, _ := math.Lgamma(a)
	b := x + 1 - a
	c := 1 / tiny
	d := 1 / b
	h := d
	for i := 1; i < 1000; i++ {
		an := -float64(i) * (float64(i) - a)
		b += 2
		d = an*d + b
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = b + an/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		del := d * c
		h *= del
		if math.Abs(del-1) < 1e-15 {
			break
		}
	}
	return math.Exp(-x+a*math.Log(x)-lg) * h
}

// chiSquarePValue is P(X >= stat) for X ~ χ²(df).
func chiSquarePValue(stat float64, df int) float64 {
	return igamc(float64(df)/2, stat/2)
}

// normalPValue is the two-sided p-value of a standard normal statistic.
func normalPValue(z float64) float64 {
	return math.Erfc(math.Abs(z) / math.Sqrt2)
}
