package sweep

import "math/rand/v2"

// splitmix64 is the SplitMix64 finalizer, used to spread a base seed into
// well-separated per-run streams.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// runRNG returns the independent generator for run r of point p.
func runRNG(seed uint64, p, r, runs int) *rand.Rand {
	idx := uint64(p)*uint64(runs) + uint64(r)
	s1 := splitmix64(seed ^ splitmix64(idx))
	s2 := splitmix64(s1)
	return rand.New(rand.NewPCG(s1, s2))
}
