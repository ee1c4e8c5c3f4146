package stattest

// Report collects the results of Battery.
type Report struct {
	Alpha   float64
	Bytes   int
	Results []Result
	Values  Summary
}

// Passed reports whether every check passed at the report's alpha.
func (r Report) Passed() bool {
	return len(r.Failed()) == 0
}

// Failed lists the names of checks below alpha.
func (r Report) Failed() []string {
	var names []string
	for _, res := range r.Results {
		if !res.Pass(r.Alpha) {
			names = append(names, res.Name)
		}
	}
	return names
}

type check func([]byte) (Result, error)

var battery = []check{ByteFrequency, Monobit, Runs, SerialCorrelation}

// Battery runs every check over data. alpha <= 0 selects DefaultAlpha.
func Battery(data []byte, alpha float64) (Report, error) {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	rep := Report{Alpha: alpha, Bytes: len(data)}
	for _, c := range battery {
		res, err := c(data)
		if err != nil {
			return Report{}, err
		}
		rep.Results = append(rep.Results, res)
	}
	rep.Values = SummarizeBytes(data)
	return rep, nil
}
