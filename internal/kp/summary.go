package kp

import (
	"time"

	"gonum.org/v1/gonum/floats"
)

// Summary describes the coverage of a Series. Min, Max and Mean are in Kp
// units and ignore missing samples.
type Summary struct {
	Samples int
	Missing int
	Days    int
	First   time.Time
	Last    time.Time
	Min     float64
	Max     float64
	Mean    float64
}

// Summarize computes coverage statistics for s.
func Summarize(s *Series) Summary {
	var sum Summary
	if s == nil || len(s.Samples) == 0 {
		return sum
	}

	sum.Samples = len(s.Samples)
	sum.First = s.Samples[0].Time
	sum.Last = s.Samples[len(s.Samples)-1].Time

	values := make([]float64, 0, len(s.Samples))
	days := make(map[time.Time]struct{})
	for _, smp := range s.Samples {
		days[smp.Time.Truncate(24*time.Hour)] = struct{}{}
		if smp.Missing() {
			sum.Missing++
			continue
		}
		values = append(values, smp.Value())
	}
	sum.Days = len(days)

	if len(values) > 0 {
		sum.Min = floats.Min(values)
		sum.Max = floats.Max(values)
		sum.Mean = floats.Sum(values) / float64(len(values))
	}
	return sum
}
