package analysis

import (
	"math"
	"sort"
)

// Summary is the field-wise aggregate of several run records.
type Summary struct {
	Mean Record `json:"mean"`
	Std  Record `json:"std"`
	Runs int    `json:"runs"`
}

// Aggregate averages records field by field. Std is the sample standard
// deviation (zero for a single run). A field missing from some records is
// averaged over the records that carry it.
func Aggregate(records []Record) Summary {
	sum := Summary{Mean: Record{}, Std: Record{}, Runs: len(records)}
	for _, field := range Fields(records) {
		var n int
		var mean, m2 float64
		// Welford's online update.
		for _, r := range records {
			v, ok := r[field]
			if !ok {
				continue
			}
			n++
			delta := v - mean
			mean += delta / float64(n)
			m2 += delta * (v - mean)
		}
		sum.Mean[field] = mean
		if n > 1 {
			sum.Std[field] = math.Sqrt(m2 / float64(n-1))
		} else {
			sum.Std[field] = 0
		}
	}
	return sum
}

// Fields returns the sorted union of field names across records.
func Fields(records []Record) []string {
	set := map[string]struct{}{}
	for _, r := range records {
		for k := range r {
			set[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
