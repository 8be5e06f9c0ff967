package controlloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPowerOfTwoHistory(t *testing.T) {
	assert.Panics(t, func() { New(128, 0.0001, 3) })
}

func TestStepAtTargetHoldsRatioAtOne(t *testing.T) {
	cl := New(128, 0.0001, 4)
	for i := 0; i < 4; i++ {
		ratio := cl.Step(128)
		assert.Equal(t, 1.0, ratio)
	}
}

func TestStepBelowTargetSpeedsUp(t *testing.T) {
	// Fill below target means the ring buffer is draining; the loop
	// should raise the ratio above 1 to feed it faster.
	cl := New(128, 0.0001, 4)
	ratio := cl.Step(0)
	assert.Greater(t, ratio, 1.0)
}

func TestStepAboveTargetSlowsDown(t *testing.T) {
	cl := New(128, 0.0001, 4)
	ratio := cl.Step(256)
	assert.Less(t, ratio, 1.0)
}

func TestOffsetClampedToTarget(t *testing.T) {
	// An empty buffer (fill=0) and a wildly negative fill should produce
	// the same clamped offset, since offset is bounded to [-target, target].
	cl1 := New(128, 0.0001, 4)
	cl2 := New(128, 0.0001, 4)

	r1 := cl1.Step(0)
	r2 := cl2.Step(-100000)
	require.Equal(t, r1, r2)
}

func TestHistorySmoothsTransientOffsets(t *testing.T) {
	cl := New(128, 0.0001, 4)
	cl.Step(128) // three steps at target
	cl.Step(128)
	cl.Step(128)
	// One large excursion should only move the ratio by 1/4 of what an
	// un-averaged loop would produce, since it's diluted across a
	// 4-entry history.
	ratio := cl.Step(0)
	avg := cl.LastAverage()
	assert.InDelta(t, 32.0, avg, 0.001) // (0+0+0+128)/4
	assert.InDelta(t, 1.0+0.0001*32.0, ratio, 1e-9)
}
