package sink

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jakemoroni/audio-async-loopback/internal/ac3codec"
	"github.com/jakemoroni/audio-async-loopback/internal/config"
	"github.com/jakemoroni/audio-async-loopback/internal/controlloop"
	"github.com/jakemoroni/audio-async-loopback/internal/device"
	"github.com/jakemoroni/audio-async-loopback/internal/resample"
	"github.com/jakemoroni/audio-async-loopback/internal/ringbuf"
)

// numChannels is the 5.1 channel count. The AC-3 sink interleaves the
// decoder's planar channels into its ring buffer in the order FL, FR,
// FC, LFE, RL, RR. The surround pair maps to
// Rear-Left/Rear-Right rather than Side-Left/Side-Right, reflecting
// AC-3's own channel labeling.
const numChannels = 6

// AC3 is the 5.1-decode sink.
type AC3 struct {
	cfg config.AC3SinkConfig

	rb       *ringbuf.RingBuffer
	loop     *controlloop.ControlLoop
	decoder  *ac3codec.Decoder
	src      [numChannels]*resample.Converter
	playback *device.Playback
	wg       sync.WaitGroup

	// ratio is the SRC ratio in effect for the *next* Process call,
	// computed after resampling with whatever ratio was set by the
	// previous call (mirrors PCM's ratio field).
	ratio float64

	scratchOut    [numChannels][]float32
	interleaveBuf []float32
}

// OpenAC3 allocates the ring buffer, opens the AC-3 decoder, creates
// six mono resamplers (one per planar channel, since the decoder
// produces planar float32 and the sink interleaves them only after
// resampling), opens a six-channel playback device, and starts the
// consumer goroutine. No channel map is passed to the playback device;
// the OS mixer's default mapping for six channels applies.
func OpenAC3(cfg config.AC3SinkConfig, latencyMicros int) (*AC3, error) {
	bufBytes := device.BufferSizeBytes(latencyMicros, numChannels, cfg.DefaultBufferBytes)

	decoder, err := ac3codec.Open()
	if err != nil {
		return nil, fmt.Errorf("sink: ac3: open decoder: %w", err)
	}

	playback, err := device.OpenPlayback(numChannels, bufBytes)
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("sink: ac3: open playback device: %w", err)
	}

	s := &AC3{
		cfg:      cfg,
		rb:       ringbuf.New(cfg.RingCapacity, cfg.TargetFill),
		loop:     controlloop.New(cfg.TargetFill, cfg.LoopGain, cfg.HistorySize),
		decoder:  decoder,
		playback: playback,
		ratio:    1.0,
	}
	for ch := range s.src {
		s.src[ch] = resample.NewConverter(1)
		// One AC-3 frame is 1536 samples; give generous headroom above
		// that for the max resample ratio.
		s.scratchOut[ch] = make([]float32, 3072)
	}
	s.interleaveBuf = make([]float32, 3072*numChannels)

	s.wg.Add(1)
	go s.consume()
	return s, nil
}

// Process submits one complete AC-3 frame: decode, resample each
// channel at the ratio held from the previous call, then interleave
// into the ring buffer. Once the resample is done, it derives the
// ratio the *next* call will use from the buffer fill measured before
// this call's samples are queued.
func (s *AC3) Process(payload []byte) {
	frame, err := s.decoder.Decode(payload)
	if err != nil {
		if !errors.Is(err, ac3codec.ErrPushBack) {
			log.Printf("ac3 sink: decode error: %v", err)
		}
		return
	}

	if len(frame.Channels) != numChannels {
		log.Printf("ac3 sink: unsupported channel count %d, dropping frame", len(frame.Channels))
		return
	}

	generated := 0
	for ch := 0; ch < numChannels; ch++ {
		data := &resample.Data{
			DataIn:       frame.Channels[ch],
			DataOut:      s.scratchOut[ch],
			InputFrames:  frame.NumSamples,
			OutputFrames: len(s.scratchOut[ch]),
			Ratio:        s.ratio,
		}
		if err := s.src[ch].Process(data); err != nil {
			log.Printf("ac3 sink: resampler error on channel %d: %v", ch, err)
			return
		}
		// All six converters are driven with the same ratio and input
		// length, so they must agree on how many frames they produced.
		generated = data.OutputFramesGen
	}

	s.rb.Lock()
	s.ratio = s.loop.Step(s.rb.Fill())

	canQueue := s.rb.Free()
	if canQueue < generated*numChannels {
		// Don't partially queue a multichannel frame: that would
		// desync the channel interleave for everything after it.
		s.rb.Unlock()
		return
	}

	for i := 0; i < generated; i++ {
		base := i * numChannels
		for ch := 0; ch < numChannels; ch++ {
			s.interleaveBuf[base+ch] = s.scratchOut[ch][i]
		}
	}
	s.rb.Push(s.interleaveBuf[:generated*numChannels])
	s.rb.Unlock()
	s.rb.Broadcast()
}

func (s *AC3) consume() {
	defer s.wg.Done()
	block := make([]float32, s.cfg.ConsumerBlockSize)
	for {
		if !s.rb.PopBlock(block) {
			return
		}
		if err := s.playback.WriteFrames(block); err != nil {
			log.Printf("ac3 sink: playback write error: %v", err)
		}
	}
}

// Close stops and joins the consumer goroutine, tears down the
// playback device, and releases the decoder.
func (s *AC3) Close() {
	s.rb.Close()
	s.wg.Wait()
	s.playback.Flush()
	s.playback.Close()
	s.decoder.Close()
}
