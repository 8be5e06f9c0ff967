package device

import (
	"fmt"
	"math"

	"github.com/gen2brain/malgo"
)

// Playback is a blocking writer of float32LE interleaved frames.
type Playback struct {
	ctx      *malgo.AllocatedContext
	device   *malgo.Device
	queue    *blockingQueue
	channels int
}

// ChannelMap51 names the 5.1 channel order used by the AC-3 sink, kept
// here only for documentation; malgo itself plays back whatever
// order it's given, relying on the OS mixer's default mapping for the
// channel count.
var ChannelMap51 = []string{"FL", "FR", "FC", "LFE", "RL", "RR"}

// OpenPlayback opens the default playback device at 48 kHz float32
// with the given channel count and a device buffer sized to
// bufferBytes, the already-resolved buffer size (latency-derived or
// default).
func OpenPlayback(channels int, bufferBytes int) (*Playback, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("device: init context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = 48000
	cfg.Alsa.NoMMap = 1

	bytesPerFrame := 4 * channels
	periodFrames := bufferBytes / bytesPerFrame
	if periodFrames < 1 {
		periodFrames = 1
	}
	cfg.PeriodSizeInFrames = uint32(periodFrames)

	p := &Playback{
		ctx:      ctx,
		channels: channels,
		queue:    newBlockingQueue(bufferBytes * 4),
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(output []byte, _ []byte, _ uint32) {
			n := p.queue.PopUpTo(output)
			for i := n; i < len(output); i++ {
				output[i] = 0
			}
		},
	})
	if err != nil {
		ctx.Uninit()
		return nil, fmt.Errorf("device: init playback device: %w", err)
	}
	p.device = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		ctx.Uninit()
		return nil, fmt.Errorf("device: start playback device: %w", err)
	}

	return p, nil
}

// WriteFrames blocks until the given interleaved float32 frames have
// been accepted into the device's buffer.
func (p *Playback) WriteFrames(frames []float32) error {
	raw := make([]byte, len(frames)*4)
	for i, f := range frames {
		bits := math.Float32bits(f)
		raw[i*4] = byte(bits)
		raw[i*4+1] = byte(bits >> 8)
		raw[i*4+2] = byte(bits >> 16)
		raw[i*4+3] = byte(bits >> 24)
	}
	p.queue.Push(raw)
	return nil
}

// Flush drops any buffered-but-unplayed data; used on sink close,
// where whatever is still queued is discarded rather than drained.
func (p *Playback) Flush() {
	p.queue.mu.Lock()
	p.queue.buf = nil
	p.queue.mu.Unlock()
}

// Close stops and tears down the playback device.
func (p *Playback) Close() {
	p.queue.Close()
	if p.device != nil {
		p.device.Stop()
		p.device.Uninit()
	}
	if p.ctx != nil {
		p.ctx.Uninit()
	}
}
