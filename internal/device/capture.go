// Package device wraps miniaudio capture/playback devices (via malgo)
// behind the blocking reader/writer boundary interfaces the bridge's
// core is written against.
package device

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// Capture is a blocking reader of 48 kHz S16LE stereo sample chunks.
type Capture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	queue  *blockingQueue
}

// OpenCapture opens the named capture source (as printed by `pactl list
// sources` on Linux, or the equivalent platform device name) at 48 kHz,
// 16-bit, 2 channels. An empty name selects the default device.
func OpenCapture(name string) (*Capture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("device: init context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 2
	cfg.SampleRate = 48000
	cfg.PeriodSizeInFrames = 128
	cfg.Alsa.NoMMap = 1

	// Queue capacity is generous relative to one chunk so the malgo
	// callback never blocks waiting on the main loop to catch up.
	c := &Capture{ctx: ctx, queue: newBlockingQueue(512 * 64)}

	if id, ok := findDeviceID(ctx, malgo.Capture, name); ok {
		cfg.Capture.DeviceID = id.Pointer()
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_ []byte, input []byte, _ uint32) {
			c.queue.Push(input)
		},
	})
	if err != nil {
		ctx.Uninit()
		return nil, fmt.Errorf("device: init capture device: %w", err)
	}
	c.device = dev

	if err := dev.Start(); err != nil {
		dev.Uninit()
		ctx.Uninit()
		return nil, fmt.Errorf("device: start capture device: %w", err)
	}

	return c, nil
}

// ReadChunk blocks until exactly len(dst) bytes have been captured and
// copies them in. dst's length must be a multiple of 2.
func (c *Capture) ReadChunk(dst []byte) error {
	if len(dst)%2 != 0 {
		return fmt.Errorf("device: chunk size %d is not a multiple of 2", len(dst))
	}
	if !c.queue.PopExact(dst) {
		return fmt.Errorf("device: capture stream closed")
	}
	return nil
}

// Close stops and tears down the capture device.
func (c *Capture) Close() {
	c.queue.Close()
	if c.device != nil {
		c.device.Stop()
		c.device.Uninit()
	}
	if c.ctx != nil {
		c.ctx.Uninit()
	}
}

// findDeviceID looks up a capture/playback device by its display name.
// Returns ok=false (select default) if name is empty or no match is
// found.
func findDeviceID(ctx *malgo.AllocatedContext, deviceType malgo.DeviceType, name string) (malgo.DeviceID, bool) {
	var zero malgo.DeviceID
	if name == "" {
		return zero, false
	}
	infos, err := ctx.Devices(deviceType)
	if err != nil {
		return zero, false
	}
	for _, info := range infos {
		if info.Name() == name {
			return info.ID, true
		}
	}
	return zero, false
}
