package opinion

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRho(t *testing.T) {
	tests := []struct {
		x    float64
		want int
	}{
		{-1, -1},
		{-0.75, -1},
		{-0.5000001, -1},
		{-0.5, 0},
		{0, 0},
		{0.5, 0},
		{0.5000001, 1},
		{1, 1},
	}
	for _, tt := range tests {
		got, err := Rho(tt.x)
		require.NoError(t, err, "Rho(%v)", tt.x)
		assert.Equal(t, tt.want, got, "Rho(%v)", tt.x)
	}
}

func TestRho_OutOfDomain(t *testing.T) {
	for _, x := range []float64{-1.0000001, 1.0000001, -3, 42, math.NaN(), math.Inf(1)} {
		_, err := Rho(x)
		assert.ErrorIs(t, err, ErrOutOfRange, "Rho(%v)", x)
	}
}

func TestAdjust_RejectsOpinionsOutsideUnitInterval(t *testing.T) {
	_, _, err := Adjust(-0.1, 0.5, 0.5, 0.3)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Contains(t, err.Error(), "-0.1")

	_, _, err = Adjust(0.5, 1.2, 0.5, 0.3)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestAdjust_WrapAroundAssimilation(t *testing.T) {
	// 0.1 and 0.9 are 0.2 apart on the circle, inside epsilon=0.3.
	i, j, err := Adjust(0.1, 0.9, 0.5, 0.3)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, i, 1e-12)
	assert.InDelta(t, 0.5, j, 1e-12)
}

func TestAdjust_RepulsionIsClamped(t *testing.T) {
	// 0.2 and 0.6 are 0.4 apart, beyond epsilon=0.1: they push apart.
	i, j, err := Adjust(0.2, 0.6, 1, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0, i, 1e-12)
	assert.InDelta(t, 1, j, 1e-12)

	i, j, err = Adjust(0.4, 0.5, 0.5, 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 0.35, i, 1e-12)
	assert.InDelta(t, 0.55, j, 1e-12)
}

func TestAdjust_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for n := 0; n < 5000; n++ {
		i, j := rng.Float64(), rng.Float64()
		mu, eps := rng.Float64(), rng.Float64()

		ni, nj, err := Adjust(i, j, mu, eps)
		require.NoError(t, err)
		assert.True(t, ni >= 0 && ni <= 1, "i'=%v out of range for (%v,%v,%v,%v)", ni, i, j, mu, eps)
		assert.True(t, nj >= 0 && nj <= 1, "j'=%v out of range for (%v,%v,%v,%v)", nj, i, j, mu, eps)

		// mu = 0 leaves both opinions where they were.
		fi, fj, err := Adjust(i, j, 0, eps)
		require.NoError(t, err)
		assert.Equal(t, i, fi)
		assert.Equal(t, j, fj)

		alt, err := PeriodicDistance(i, j)
		require.NoError(t, err)
		if math.Abs(alt) < eps {
			si, sj, err := Adjust(j, i, mu, eps)
			require.NoError(t, err)
			assert.InDelta(t, nj, si, 1e-12)
			assert.InDelta(t, ni, sj, 1e-12)
		}
	}
}

func TestPeriodicDistance(t *testing.T) {
	d, err := PeriodicDistance(0.05, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, d, 1e-12)

	d, err = PeriodicDistance(0.3, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, d, 1e-12)
}
