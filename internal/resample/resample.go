// Package resample is a small windowed-sinc, variable-ratio sample-rate
// converter. It implements the same call contract as libsamplerate's
// SRC_SINC_BEST_QUALITY converter: a converter instance is created once
// per channel stream, then driven call after call with a per-call
// ratio, carrying its filter state (fractional read position and
// interpolation history) across calls.
//
// Both sinks in this bridge treat this package as their sample-rate
// conversion boundary: a best-quality sinc converter accepting a
// per-call ratio. The PCM sink drives one two-channel (interleaved)
// instance; the AC-3 sink drives six one-channel (planar) instances so
// that all six can be stepped with an identical ratio per frame.
package resample

import "math"

const (
	// halfTaps is the kernel half-width in input samples; the sinc
	// window spans 2*halfTaps+1 taps around the interpolation point.
	halfTaps = 24
	// oversample is the number of fractional-phase kernel rows
	// precomputed per input-sample step.
	oversample = 128
	kaiserBeta = 8.6
)

// kernel[phase][tap] is a table of Kaiser-windowed sinc coefficients,
// indexed by fractional phase (0..oversample-1) and tap offset
// (0..2*halfTaps). Built once at package init.
var kernel [oversample + 1][2*halfTaps + 1]float64

func init() {
	for phase := 0; phase <= oversample; phase++ {
		frac := float64(phase) / float64(oversample)
		for tap := 0; tap <= 2*halfTaps; tap++ {
			// x is the distance (in input samples) from the
			// interpolation point to this tap.
			x := float64(tap-halfTaps) - frac
			kernel[phase][tap] = sinc(x) * kaiserWindow(x, halfTaps, kaiserBeta)
		}
	}
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func kaiserWindow(x float64, half int, beta float64) float64 {
	t := x / float64(half)
	if t < -1 || t > 1 {
		return 0
	}
	return besselI0(beta*math.Sqrt(1-t*t)) / besselI0(beta)
}

// besselI0 is the zeroth-order modified Bessel function, computed via
// its series expansion (sufficient precision for a window function).
func besselI0(x float64) float64 {
	sum := 1.0
	term := 1.0
	halfX := x / 2
	for k := 1; k < 25; k++ {
		term *= (halfX * halfX) / float64(k*k)
		sum += term
	}
	return sum
}

// Data mirrors libsamplerate's SRC_DATA: a self-contained description
// of one Process call, in and out.
type Data struct {
	DataIn  []float32
	DataOut []float32

	// InputFrames is frames available in DataIn (per channel, i.e. one
	// frame is one sample for a mono Converter or one L/R pair for a
	// stereo one).
	InputFrames int

	// OutputFrames is the capacity of DataOut, in frames.
	OutputFrames int

	// InputFramesUsed and OutputFramesGen are set by Process.
	InputFramesUsed int
	OutputFramesGen int

	EndOfInput bool
	Ratio      float64
}

// Converter is a single instance of the sinc converter for a fixed
// channel count (1 for planar AC-3 channels, 2 for interleaved PCM).
// Its filter history is carried across Process calls and is only ever
// touched by the calling producer goroutine, so it needs no locking.
type Converter struct {
	channels int

	// history holds the last 2*halfTaps input frames (one slot per
	// channel per tap), acting as the tail of the previous call so the
	// kernel can look backward across call boundaries.
	history []float32 // len = channels * 2*halfTaps
	primed  bool

	// pos is the fractional read position, in input frames, measured
	// from the start of the current call's input (carried over as the
	// non-negative remainder past the last consumed input frame).
	pos float64
}

// NewConverter allocates a converter for the given channel count.
func NewConverter(channels int) *Converter {
	return &Converter{
		channels: channels,
		history:  make([]float32, channels*2*halfTaps),
	}
}

// Reset clears interpolation history, as if newly constructed.
func (c *Converter) Reset() {
	for i := range c.history {
		c.history[i] = 0
	}
	c.primed = false
	c.pos = 0
}

// sample returns input frame index i's value for channel ch, treating
// the concatenation of history (indices < 0) and data.DataIn (indices
// >= 0) as one continuous stream.
func (c *Converter) sample(data *Data, i int, ch int) float32 {
	if i < 0 {
		hi := len(c.history)/c.channels + i
		if hi < 0 {
			return 0
		}
		return c.history[hi*c.channels+ch]
	}
	if i >= data.InputFrames {
		return 0
	}
	return data.DataIn[i*c.channels+ch]
}

// Process runs the converter over one call's worth of input, writing
// up to data.OutputFrames output frames and reporting how much input it
// consumed. Ratio is read fresh from data.Ratio on every call, so the
// caller can adjust it between calls without resetting the converter.
func (c *Converter) Process(data *Data) error {
	step := 1.0 / data.Ratio
	outIdx := 0
	pos := c.pos

	for outIdx < data.OutputFrames {
		srcPos := int(math.Floor(pos))
		if srcPos >= data.InputFrames {
			break
		}
		frac := pos - float64(srcPos)
		phase := int(frac * oversample)
		if phase > oversample {
			phase = oversample
		}

		for ch := 0; ch < c.channels; ch++ {
			var acc float64
			for tap := 0; tap <= 2*halfTaps; tap++ {
				idx := srcPos + (tap - halfTaps)
				acc += float64(c.sample(data, idx, ch)) * kernel[phase][tap]
			}
			data.DataOut[outIdx*c.channels+ch] = float32(acc)
		}

		outIdx++
		pos += step
	}

	consumed := int(math.Floor(pos))
	if consumed > data.InputFrames {
		consumed = data.InputFrames
	}
	if consumed < 0 {
		consumed = 0
	}

	// Carry the fractional remainder forward, and refill history from
	// the tail of this call's input so the next call's negative-index
	// lookups stay correct.
	c.pos = pos - float64(consumed)
	c.saveHistory(data, consumed)

	data.InputFramesUsed = consumed
	data.OutputFramesGen = outIdx
	return nil
}

// saveHistory records the last 2*halfTaps consumed input frames (plus
// whatever tail of the previous history is still needed) so that the
// next call's backward-looking taps see continuous data.
func (c *Converter) saveHistory(data *Data, consumed int) {
	tapsPerCh := 2 * halfTaps
	next := make([]float32, len(c.history))
	for t := 0; t < tapsPerCh; t++ {
		srcIdx := consumed - tapsPerCh + t
		for ch := 0; ch < c.channels; ch++ {
			next[t*c.channels+ch] = c.sample(data, srcIdx, ch)
		}
	}
	c.history = next
	c.primed = true
}
