package sweep

import "fmt"

// MaxLinspaceCount bounds a single parameter axis.
const MaxLinspaceCount = 1 << 16

// Linspace returns count evenly spaced values from start to stop
// inclusive. One value yields [start].
func Linspace(start, stop float64, count int) ([]float64, error) {
	if count < 1 || count > MaxLinspaceCount {
		return nil, fmt.Errorf("linspace: count must be in [1, %d], got %d", MaxLinspaceCount, count)
	}
	out := make([]float64, count)
	if count == 1 {
		out[0] = start
		return out, nil
	}
	step := (stop - start) / float64(count-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[count-1] = stop
	return out, nil
}
