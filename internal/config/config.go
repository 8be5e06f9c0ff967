// Package config collects the tuning parameters shared by the ring
// buffers, control loops, and sinks so they don't end up scattered as
// magic numbers across the codebase.
package config

// Config holds every named parameter the bridge needs at runtime.
// Values default to the reference C implementation's config.h
// defaults.
type Config struct {
	// InputChunkBytes is the size of one capture read.
	InputChunkBytes int

	// DetectionWindow is the number of consecutive non-61937 chunks
	// required before the arbiter leaves IEC61937 mode (or declares
	// PCM from UNKNOWN).
	DetectionWindow int

	// LatencyMicroseconds is not read by the bridge: the requested
	// playback latency from the command line is passed to arbiter.New
	// as a separate argument (zero means "use the per-sink default").
	LatencyMicroseconds int

	PCM PCMSinkConfig
	AC3 AC3SinkConfig
}

// PCMSinkConfig tunes the stereo PCM sink's ring buffer and control loop.
type PCMSinkConfig struct {
	RingCapacity       int     // must be a power of two
	TargetFill         int     // T, in samples (L/R pairs counted as 2)
	LoopGain           float64 // G
	HistorySize        int     // H, must be a power of two
	ConsumerBlockSize  int     // P, must be even
	DefaultBufferBytes int     // playback device default buffer size
}

// AC3SinkConfig tunes the 5.1 AC-3 sink's ring buffer and control loop.
type AC3SinkConfig struct {
	RingCapacity       int     // must be a power of two
	TargetFill         int     // T, in samples, must be a multiple of 6
	LoopGain           float64 // G
	HistorySize        int     // H, must be a power of two
	ConsumerBlockSize  int     // must be a multiple of 6
	DefaultBufferBytes int
	NumChannels        int
}

// Default returns the reference configuration: the constants from the
// original implementation's config.h, carried over as named fields.
func Default() Config {
	return Config{
		InputChunkBytes: 512,
		DetectionWindow: 64,
		PCM: PCMSinkConfig{
			RingCapacity:       2048,
			TargetFill:         128,
			LoopGain:           0.000004,
			HistorySize:        16,
			ConsumerBlockSize:  32,
			DefaultBufferBytes: 2048,
		},
		AC3: AC3SinkConfig{
			RingCapacity:       32768,
			TargetFill:         384,
			LoopGain:           0.0000013334,
			HistorySize:        16,
			ConsumerBlockSize:  96,
			DefaultBufferBytes: 6144,
			NumChannels:        6,
		},
	}
}
