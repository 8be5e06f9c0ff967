// Package sink implements the two producer/consumer sinks the mode
// arbiter opens and closes: the stereo PCM sink and the 5.1 AC-3 sink.
// Each owns a ring buffer, a control loop, one or more sample-rate
// converters, and a dedicated consumer goroutine writing to a playback
// device.
package sink

import (
	"fmt"
	"log"
	"sync"

	"github.com/jakemoroni/audio-async-loopback/internal/config"
	"github.com/jakemoroni/audio-async-loopback/internal/controlloop"
	"github.com/jakemoroni/audio-async-loopback/internal/device"
	"github.com/jakemoroni/audio-async-loopback/internal/resample"
	"github.com/jakemoroni/audio-async-loopback/internal/ringbuf"
)

// PCM is the stereo passthrough sink.
type PCM struct {
	cfg config.PCMSinkConfig

	rb       *ringbuf.RingBuffer
	loop     *controlloop.ControlLoop
	src      *resample.Converter
	playback *device.Playback
	wg       sync.WaitGroup

	// ratio is the SRC ratio in effect for the *next* Process call. It
	// is computed from the current buffer fill only after resampling
	// with whatever ratio was set by the previous call, so a given
	// chunk is always converted at the ratio derived one step earlier.
	ratio float64

	scratchIn  []float32
	scratchOut []float32
}

// OpenPCM allocates the ring buffer (seeded to the target fill),
// creates the resampler and playback device, and starts the consumer
// goroutine.
func OpenPCM(cfg config.PCMSinkConfig, latencyMicros int) (*PCM, error) {
	bufBytes := device.BufferSizeBytes(latencyMicros, 2, cfg.DefaultBufferBytes)

	playback, err := device.OpenPlayback(2, bufBytes)
	if err != nil {
		return nil, fmt.Errorf("sink: pcm: open playback device: %w", err)
	}

	s := &PCM{
		cfg:        cfg,
		rb:         ringbuf.New(cfg.RingCapacity, cfg.TargetFill),
		loop:       controlloop.New(cfg.TargetFill, cfg.LoopGain, cfg.HistorySize),
		src:        resample.NewConverter(2),
		playback:   playback,
		ratio:      1.0,
		scratchIn:  make([]float32, 256),
		scratchOut: make([]float32, 512), // generous headroom above 256 at max ratio
	}

	s.wg.Add(1)
	go s.consume()
	return s, nil
}

// Process converts one 512-byte S16LE stereo chunk to float, resamples
// it at the ratio held from the previous call, and enqueues as many of
// the resulting samples as fit. Once the resample is done, it derives
// the ratio the *next* call will use from the buffer fill measured
// before this call's samples are queued.
func (s *PCM) Process(chunk []byte) {
	nrSamples := len(chunk) / 2
	for i := 0; i < nrSamples; i++ {
		v := int16(uint16(chunk[2*i]) | uint16(chunk[2*i+1])<<8)
		s.scratchIn[i] = float32(v) * (1.0 / 32768.0)
	}

	data := &resample.Data{
		DataIn:       s.scratchIn[:nrSamples],
		DataOut:      s.scratchOut,
		InputFrames:  nrSamples / 2,
		OutputFrames: len(s.scratchOut) / 2,
		Ratio:        s.ratio,
	}

	if err := s.src.Process(data); err != nil {
		log.Printf("pcm sink: resampler error: %v", err)
		return
	}

	generated := data.OutputFramesGen * 2

	s.rb.Lock()
	s.ratio = s.loop.Step(s.rb.Fill())

	canQueue := s.rb.Free()
	willQueue := generated
	if willQueue > canQueue {
		willQueue = canQueue
	}
	// Keep L/R alignment: only ever push an even count.
	willQueue &^= 1
	s.rb.Push(s.scratchOut[:willQueue])
	s.rb.Unlock()
	s.rb.Broadcast()
}

func (s *PCM) consume() {
	defer s.wg.Done()
	block := make([]float32, s.cfg.ConsumerBlockSize)
	for {
		if !s.rb.PopBlock(block) {
			return
		}
		if err := s.playback.WriteFrames(block); err != nil {
			log.Printf("pcm sink: playback write error: %v", err)
		}
	}
}

// Close stops the consumer goroutine, joins it, discards whatever is
// still queued, and tears down the playback device. Close is
// synchronous: the consumer goroutine is joined before the playback
// device is freed.
func (s *PCM) Close() {
	s.rb.Close()
	s.wg.Wait()
	s.playback.Flush()
	s.playback.Close()
}
