package stattest

import (
	"fmt"
	"io"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// TrialReport aggregates Battery runs over independent samples.
type TrialReport struct {
	Trials int
	Alpha  float64
	// MinProportion is the lowest acceptable pass rate per check, from
	// NIST SP 800-22 §4.2.1: (1-α) - 3·sqrt(α(1-α)/k).
	MinProportion float64
	Passes        map[string]int
	PValues       map[string]Summary
}

// Proportion returns the pass rate of the named check.
func (r TrialReport) Proportion(name string) float64 {
	if r.Trials == 0 {
		return 0
	}
	return float64(r.Passes[name]) / float64(r.Trials)
}

// Passed reports whether every check met MinProportion.
func (r TrialReport) Passed() bool {
	for name := range r.Passes {
		if r.Proportion(name) < r.MinProportion {
			return false
		}
	}
	return r.Trials > 0
}

// RunTrials draws k samples of n bytes, sample i from gen(i), runs Battery
// on each and aggregates the pass counts. Trials run in parallel, so gen
// must return an independent reader per call.
func RunTrials(k, n int, gen func(i int) io.Reader, alpha float64) (TrialReport, error) {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	rep := TrialReport{
		Trials:        k,
		Alpha:         alpha,
		MinProportion: (1 - alpha) - 3*math.Sqrt(alpha*(1-alpha)/float64(max(k, 1))),
		Passes:        make(map[string]int),
		PValues:       make(map[string]Summary),
	}
	if k <= 0 {
		return rep, nil
	}

	reports := make([]Report, k)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range k {
		g.Go(func() error {
			buf := make([]byte, n)
			if _, err := io.ReadFull(gen(i), buf); err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			r, err := Battery(buf, alpha)
			if err != nil {
				return fmt.Errorf("trial %d: %w", i, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TrialReport{}, err
	}

	pvals := make(map[string][]float64)
	for _, r := range reports {
		for _, res := range r.Results {
			if res.Pass(alpha) {
				rep.Passes[res.Name]++
			} else if _, ok := rep.Passes[res.Name]; !ok {
				rep.Passes[res.Name] = 0
			}
			pvals[res.Name] = append(pvals[res.Name], res.PValue)
		}
	}
	for name, ps := range pvals {
		rep.PValues[name] = Summarize(ps)
	}
	return rep, nil
}
