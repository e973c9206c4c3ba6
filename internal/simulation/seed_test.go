package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRand(t *testing.T) {
	a, seedA := NewRand(42)
	b, seedB := NewRand(42)
	assert.Equal(t, uint64(42), seedA)
	assert.Equal(t, seedA, seedB)
	for i := 0; i < 5; i++ {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}

	r, seed := NewRand(0)
	assert.NotZero(t, seed, "a zero seed must be replaced")
	replay, _ := NewRand(seed)
	assert.Equal(t, r.Float64(), replay.Float64())
}
