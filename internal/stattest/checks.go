package stattest

import "math"

const (
	minFrequencyBytes   = 256 * 5
	minBitTestBytes     = 13
	minCorrelationBytes = 100
)

// ByteFrequency is Pearson's χ² goodness-of-fit test of byte values against
// the uniform distribution, with 255 degrees of freedom.
func ByteFrequency(data []byte) (Result, error) {
	if err := needBytes("byte frequency", data, minFrequencyBytes); err != nil {
		return Result{}, err
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	expected := float64(len(data)) / 256
	var chi2 float64
	for _, c := range counts {
		d := float64(c) - expected
		chi2 += d * d / expected
	}
	return Result{
		Name:      "byte_frequency",
		Statistic: chi2,
		PValue:    chiSquarePValue(chi2, 255),
	}, nil
}

// Monobit is the frequency test of NIST SP 800-22 §2.1 over the bits of data.
func Monobit(data []byte) (Result, error) {
	if err := needBytes("monobit", data, minBitTestBytes); err != nil {
		return Result{}, err
	}
	return monobit(bitsOf(data)), nil
}

// Runs is the runs test of NIST SP 800-22 §2.3. It returns a zero p-value
// when the frequency prerequisite already fails.
func Runs(data []byte) (Result, error) {
	if err := needBytes("runs", data, minBitTestBytes); err != nil {
		return Result{}, err
	}
	return runs(bitsOf(data)), nil
}

// SerialCorrelation tests the lag-1 autocorrelation of byte values. Under
// the null hypothesis r·√n is approximately standard normal.
func SerialCorrelation(data []byte) (Result, error) {
	if err := needBytes("serial correlation", data, minCorrelationBytes); err != nil {
		return Result{}, err
	}
	n := len(data)
	var sum float64
	for _, b := range data {
		sum += float64(b)
	}
	mean := sum / float64(n)

	var num, den float64
	for i, b := range data {
		d := float64(b) - mean
		den += d * d
		if i+1 < n {
			num += d * (float64(data[i+1]) - mean)
		}
	}
	res := Result{Name: "serial_correlation"}
	if den == 0 {
		// constant input is perfectly correlated
		res.Statistic = 1
		return res, nil
	}
	r := num / den
	res.Statistic = r
	res.PValue = normalPValue(r * math.Sqrt(float64(n)))
	return res, nil
}

// Overlap reports whether a and b share any window-byte substring.
func Overlap(a, b []byte, window int) bool {
	if window <= 0 || len(a) < window || len(b) < window {
		return false
	}
	seen := make(map[string]struct{}, len(a)-window+1)
	for i := 0; i+window <= len(a); i++ {
		seen[string(a[i:i+window])] = struct{}{}
	}
	for i := 0; i+window <= len(b); i++ {
		if _, ok := seen[string(b[i:i+window])]; ok {
			return true
		}
	}
	return false
}

// bitsOf expands data into one 0/1 byte per bit, most significant first.
func bitsOf(data []byte) []byte {
	bits := make([]byte, 0, len(data)*8)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>i)&1)
		}
	}
	return bits
}

func monobit(bits []byte) Result {
	var s int
	for _, b := range bits {
		s += 2*int(b) - 1
	}
	obs := math.Abs(float64(s)) / math.Sqrt(float64(len(bits)))
	return Result{
		Name:      "monobit",
		Statistic: obs,
		PValue:    math.Erfc(obs / math.Sqrt2),
	}
}

func runs(bits []byte) Result {
	n := float64(len(bits))
	var ones int
	for _, b := range bits {
		ones += int(b)
	}
	pi := float64(ones) / n
	res := Result{Name: "runs"}
	if math.Abs(pi-0.5) >= 2/math.Sqrt(n) {
		return res
	}
	v := 1
	for i := 1; i < len(bits); i++ {
		if bits[i] != bits[i-1] {
			v++
		}
	}
	res.Statistic = float64(v)
	q := pi * (1 - pi)
	res.PValue = math.Erfc(math.Abs(float64(v)-2*n*q) / (2 * math.Sqrt(2*n) * q))
	return res
}
