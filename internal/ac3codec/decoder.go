// Package ac3codec wraps an ffmpeg AC-3 decoder via astiav, using the
// standard allocate-context/open/free lifecycle astiav callers follow
// for any codec context.
package ac3codec

import (
	"fmt"
	"math"

	"github.com/asticode/go-astiav"
)

// DecodedFrame is a planar, six-channel float32 frame decoded from one
// AC-3 payload, at 48 kHz: one 1536-sample AC-3 frame decodes to 1536
// planar float32 samples per channel, across 6 channels.
type DecodedFrame struct {
	// Channels holds one slice per channel; each slice has NumSamples
	// entries. Only valid until the next Decode call.
	Channels   [][]float32
	NumSamples int
}

// Decoder owns one astiav AC-3 decoder context.
type Decoder struct {
	codecCtx *astiav.CodecContext
	packet   *astiav.Packet
	frame    *astiav.Frame

	scratch DecodedFrame
}

// Open allocates and opens an AC-3 decoder context.
func Open() (*Decoder, error) {
	codec := astiav.FindDecoder(astiav.CodecIDAc3)
	if codec == nil {
		return nil, fmt.Errorf("ac3codec: AC-3 decoder not available")
	}

	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, fmt.Errorf("ac3codec: failed to allocate codec context")
	}

	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("ac3codec: failed to open codec: %w", err)
	}

	packet := astiav.AllocPacket()
	frame := astiav.AllocFrame()

	return &Decoder{codecCtx: ctx, packet: packet, frame: frame}, nil
}

// Close releases the decoder context, packet, and frame. Safe to call
// once; matches the AC-3 sink's close-path teardown order.
func (d *Decoder) Close() {
	if d.packet != nil {
		d.packet.Free()
		d.packet = nil
	}
	if d.frame != nil {
		d.frame.Free()
		d.frame = nil
	}
	if d.codecCtx != nil {
		d.codecCtx.Free()
		d.codecCtx = nil
	}
}

// ErrPushBack is returned when the decoder refuses the frame pending
// drained output. The caller should treat this like any other
// per-frame soft error: drop the frame and continue with the next one.
var ErrPushBack = fmt.Errorf("ac3codec: decoder not accepting input, drained pending output")

// Decode submits one complete AC-3 frame and returns the decoded
// planar float32 frame. On ErrPushBack, the decoder has drained its
// pending output internally and the caller's frame is simply lost —
// AC-3 resynchronizes per frame so no special recovery is needed.
func (d *Decoder) Decode(payload []byte) (*DecodedFrame, error) {
	d.packet.SetData(payload)

	if err := d.codecCtx.SendPacket(d.packet); err != nil {
		if astiav.ErrIsEAGAIN(err) {
			d.drain()
			return nil, ErrPushBack
		}
		return nil, fmt.Errorf("ac3codec: send packet: %w", err)
	}

	if err := d.codecCtx.ReceiveFrame(d.frame); err != nil {
		return nil, fmt.Errorf("ac3codec: receive frame: %w", err)
	}
	defer d.frame.Unref()

	channels := d.frame.ChannelLayout().Channels()
	nbSamples := d.frame.NbSamples()

	if cap(d.scratch.Channels) < channels {
		d.scratch.Channels = make([][]float32, channels)
	}
	d.scratch.Channels = d.scratch.Channels[:channels]

	for ch := 0; ch < channels; ch++ {
		raw, err := d.frame.Data().PlaneBytes(ch)
		if err != nil {
			return nil, fmt.Errorf("ac3codec: plane %d: %w", ch, err)
		}
		d.scratch.Channels[ch] = bytesToFloat32(raw, nbSamples)
	}
	d.scratch.NumSamples = nbSamples

	return &d.scratch, nil
}

// drain reads and discards any frames the decoder was already holding
// after an EAGAIN from SendPacket, so the next SendPacket can succeed.
func (d *Decoder) drain() {
	for {
		if err := d.codecCtx.ReceiveFrame(d.frame); err != nil {
			d.frame.Unref()
			return
		}
		d.frame.Unref()
	}
}

func bytesToFloat32(raw []byte, nbSamples int) []float32 {
	out := make([]float32, nbSamples)
	for i := 0; i < nbSamples; i++ {
		bits := uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
