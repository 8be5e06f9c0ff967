// Package controlloop implements the proportional control loop that
// derives a sample-rate-converter ratio from a ring buffer's fill
// level. Both sinks use one instance each, sized by their own target
// fill, gain, and history length.
package controlloop

// ControlLoop computes ratio = 1 + gain*average(clamp(target-fill)),
// averaged over a power-of-two history window to damp transient jitter.
type ControlLoop struct {
	target  int
	gain    float64
	history []int32
	histIdx int
	mask    int

	// lastAverage is retained for diagnostics/tests; it is not part of
	// the control algorithm itself.
	lastAverage float64
}

// New builds a control loop. historySize must be a power of two; 16
// is the recommended default.
func New(target int, gain float64, historySize int) *ControlLoop {
	if historySize <= 0 || historySize&(historySize-1) != 0 {
		panic("controlloop: historySize must be a power of two")
	}
	return &ControlLoop{
		target:  target,
		gain:    gain,
		history: make([]int32, historySize),
		mask:    historySize - 1,
	}
}

// Step computes the next ratio from the current buffer fill. It must be
// called with the fill measured before any new samples are pushed for
// this producer step.
func (cl *ControlLoop) Step(fill int) float64 {
	offset := cl.target - fill

	if offset < -cl.target {
		offset = -cl.target
	} else if offset > cl.target {
		offset = cl.target
	}

	cl.history[cl.histIdx] = int32(offset)
	cl.histIdx = (cl.histIdx + 1) & cl.mask

	var sum int64
	for _, h := range cl.history {
		sum += int64(h)
	}
	average := float64(sum) / float64(len(cl.history))
	cl.lastAverage = average

	return 1.0 + cl.gain*average
}

// LastAverage returns the most recent averaged offset, for tests and
// diagnostics.
func (cl *ControlLoop) LastAverage() float64 {
	return cl.lastAverage
}
