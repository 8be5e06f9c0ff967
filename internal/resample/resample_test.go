package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSilenceInSilenceOut(t *testing.T) {
	c := NewConverter(1)
	in := make([]float32, 64)
	out := make([]float32, 128)

	data := &Data{DataIn: in, DataOut: out, InputFrames: 64, OutputFrames: 128, Ratio: 1.0}
	require.NoError(t, c.Process(data))

	for i := 0; i < data.OutputFramesGen; i++ {
		assert.Equal(t, float32(0), out[i])
	}
}

func TestUnityRatioProducesRoughlyOneOutputPerInput(t *testing.T) {
	c := NewConverter(1)
	in := make([]float32, 200)
	for i := range in {
		in[i] = float32(i % 7)
	}
	out := make([]float32, 400)

	data := &Data{DataIn: in, DataOut: out, InputFrames: 200, OutputFrames: 400, Ratio: 1.0}
	require.NoError(t, c.Process(data))

	assert.InDelta(t, 200, data.OutputFramesGen, 2)
}

func TestHigherRatioGeneratesMoreOutputFrames(t *testing.T) {
	in := make([]float32, 200)
	for i := range in {
		in[i] = float32(i % 5)
	}

	low := NewConverter(1)
	dataLow := &Data{DataIn: in, DataOut: make([]float32, 800), InputFrames: 200, OutputFrames: 800, Ratio: 1.0}
	require.NoError(t, low.Process(dataLow))

	high := NewConverter(1)
	dataHigh := &Data{DataIn: in, DataOut: make([]float32, 800), InputFrames: 200, OutputFrames: 800, Ratio: 2.0}
	require.NoError(t, high.Process(dataHigh))

	assert.Greater(t, dataHigh.OutputFramesGen, dataLow.OutputFramesGen)
}

func TestInputFramesUsedNeverExceedsAvailable(t *testing.T) {
	c := NewConverter(2) // stereo
	in := make([]float32, 20) // 10 frames
	out := make([]float32, 4)

	data := &Data{DataIn: in, DataOut: out, InputFrames: 10, OutputFrames: 2, Ratio: 1.0}
	require.NoError(t, c.Process(data))

	assert.LessOrEqual(t, data.InputFramesUsed, 10)
}

func TestStateCarriesAcrossCalls(t *testing.T) {
	c := NewConverter(1)
	in1 := make([]float32, 32)
	in2 := make([]float32, 32)
	for i := range in1 {
		in1[i] = 1
		in2[i] = 1
	}

	out := make([]float32, 64)
	d1 := &Data{DataIn: in1, DataOut: out, InputFrames: 32, OutputFrames: 64, Ratio: 1.0}
	require.NoError(t, c.Process(d1))
	require.NotPanics(t, func() {
		d2 := &Data{DataIn: in2, DataOut: out, InputFrames: 32, OutputFrames: 64, Ratio: 1.0}
		require.NoError(t, c.Process(d2))
	})
}

func TestResetClearsHistoryAndPosition(t *testing.T) {
	c := NewConverter(1)
	in := make([]float32, 32)
	for i := range in {
		in[i] = 1
	}
	out := make([]float32, 64)
	d := &Data{DataIn: in, DataOut: out, InputFrames: 32, OutputFrames: 64, Ratio: 1.0}
	require.NoError(t, c.Process(d))

	c.Reset()
	for _, v := range c.history {
		assert.Equal(t, float32(0), v)
	}
	assert.Equal(t, 0.0, c.pos)
}
