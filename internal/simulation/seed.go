package simulation

import "math/rand/v2"

// NewRand returns a PCG generator for seed together with the seed actually
// used. A zero seed draws a fresh one so the run can still be reproduced.
func NewRand(seed uint64) (*rand.Rand, uint64) {
	if seed == 0 {
		seed = rand.Uint64() | 1
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), seed
}
