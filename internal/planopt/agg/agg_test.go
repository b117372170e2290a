package agg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSumAccumulator(t *testing.T) {
	a := NewAccumulator(Descriptor{Kind: Sum})
	for _, v := range []float64{1, 2, 3} {
		a.Step(v)
	}
	out, err := a.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 6.0, out)
}

func TestCountAccumulatorIgnoresValues(t *testing.T) {
	a := NewAccumulator(Descriptor{Kind: Count})
	a.Step(100)
	a.Step(-5)
	out, err := a.Finalize()
	require.NoError(t, err)
	assert.Equal(t, int64(2), out)
}

func TestMinMaxAccumulator(t *testing.T) {
	minAcc := NewAccumulator(Descriptor{Kind: Min})
	maxAcc := NewAccumulator(Descriptor{Kind: Max})
	for i := 0; i < 10; i++ {
		v := float64(2*i + 20)
		minAcc.Step(v)
		maxAcc.Step(v)
	}
	minOut, err := minAcc.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 20.0, minOut)

	maxOut, err := maxAcc.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 38.0, maxOut)
}

func TestMinOfEmptyGroupErrors(t *testing.T) {
	a := NewAccumulator(Descriptor{Kind: Min})
	_, err := a.Finalize()
	require.Error(t, err)
}
