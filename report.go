package distribution

import (
	"math"
	"strconv"
)

// DefaultPercentiles are reported when Summarize is given none.
var DefaultPercentiles = []float64{50, 90, 95, 99}

// Report is a JSON friendly snapshot of a distribution. Undefined
// statistics are nil.
type Report struct {
	Kind          string              `json:"kind"`
	Sketch        string              `json:"sketch"`
	K             int                 `json:"k"`
	Count         uint64              `json:"count"`
	Sum           float64             `json:"sum"`
	SumOfSquares  float64             `json:"sumOfSquares"`
	SumOfLogs     *float64            `json:"sumOfLogs"`
	Min           *float64            `json:"min"`
	Max           *float64            `json:"max"`
	Mean          *float64            `json:"mean"`
	Variance      *float64            `json:"variance"`
	StdDev        *float64            `json:"stdDev"`
	QuadraticMean *float64            `json:"quadraticMean"`
	Skewness      *float64            `json:"skewness"`
	Kurtosis      *float64            `json:"kurtosis"`
	Percentiles   map[string]*float64 `json:"percentiles"`
}

// Summarize collects every supported statistic of d. Percentiles are keyed
// "p" followed by the percentile, e.g. "p99.9".
func Summarize(d Distribution, percentiles []float64) Report {
	if len(percentiles) == 0 {
		percentiles = DefaultPercentiles
	}
	r := Report{
		Kind:          d.Kind().String(),
		Sketch:        d.SketchKind().String(),
		K:             d.K(),
		Count:         d.Count(),
		Sum:           d.Sum(),
		SumOfSquares:  d.SumOfSquares(),
		SumOfLogs:     defined(d.SumOfLogs()),
		Mean:          defined(d.Mean()),
		Variance:      defined(d.Variance()),
		StdDev:        defined(d.StdDev()),
		QuadraticMean: defined(d.QuadraticMean()),
		Skewness:      defined(d.Skewness()),
		Kurtosis:      defined(d.Kurtosis()),
		Percentiles:   make(map[string]*float64, len(percentiles)),
	}
	if v, ok := d.Min(); ok {
		r.Min = &v
	}
	if v, ok := d.Max(); ok {
		r.Max = &v
	}
	for _, p := range percentiles {
		r.Percentiles[PercentileName(p)] = defined(d.Percentile(p))
	}
	return r
}

// PercentileName formats p as a report key.
func PercentileName(p float64) string {
	return "p" + strconv.FormatFloat(p, 'f', -1, 64)
}

func defined(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
