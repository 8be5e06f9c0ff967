// Package arbiter implements the mode arbiter: the chunk-level state
// machine that decides whether the input is PCM or an IEC 61937
// bitstream, and gates opening/closing of the two sinks accordingly.
package arbiter

import (
	"log"

	"github.com/jakemoroni/audio-async-loopback/internal/config"
	"github.com/jakemoroni/audio-async-loopback/internal/iec61937"
	"github.com/jakemoroni/audio-async-loopback/internal/sink"
)

// Mode is the arbiter's top-level state.
type Mode int

const (
	ModeUnknown Mode = iota
	ModePCM
	ModeIEC61937
)

// pcmSink and ac3Sink are the arbiter's view of the two sink types:
// just enough to drive and tear one down. Real callers get sink.PCM
// and sink.AC3 through defaultFactory; tests substitute fakes so the
// mode transitions can be exercised without opening real audio
// devices.
type pcmSink interface {
	Process(chunk []byte)
	Close()
}

type ac3Sink interface {
	Process(payload []byte)
	Close()
}

// sinkFactory opens the two sink types. defaultFactory wraps the real
// sink package; tests inject a fake.
type sinkFactory interface {
	OpenPCM(cfg config.PCMSinkConfig, latencyMicros int) (pcmSink, error)
	OpenAC3(cfg config.AC3SinkConfig, latencyMicros int) (ac3Sink, error)
}

type defaultFactory struct{}

func (defaultFactory) OpenPCM(cfg config.PCMSinkConfig, latencyMicros int) (pcmSink, error) {
	return sink.OpenPCM(cfg, latencyMicros)
}

func (defaultFactory) OpenAC3(cfg config.AC3SinkConfig, latencyMicros int) (ac3Sink, error) {
	return sink.OpenAC3(cfg, latencyMicros)
}

// activeSink holds whichever sink is open: "no sink" (both nil), "PCM
// sink open" or "AC-3 sink open". The transition code closes the old
// sink before opening the new one, so at most one field is non-nil.
type activeSink struct {
	pcm pcmSink
	ac3 ac3Sink
}

// Arbiter owns the IEC 61937 FSM and the currently-open sink, and
// drives chunk-by-chunk mode transitions.
type Arbiter struct {
	cfg           config.Config
	latencyMicros int
	factory       sinkFactory

	mode          Mode
	nonLockCount  int
	active        activeSink

	fsm *iec61937.FSM
}

// New creates an arbiter in the initial UNKNOWN mode. latencyMicros is
// forwarded to whichever sink gets opened.
func New(cfg config.Config, latencyMicros int) *Arbiter {
	a := &Arbiter{cfg: cfg, latencyMicros: latencyMicros, mode: ModeUnknown, factory: defaultFactory{}}
	a.fsm = iec61937.New(a.onBurst)
	return a
}

// Mode reports the arbiter's current mode, mainly for tests.
func (a *Arbiter) Mode() Mode { return a.mode }

// onBurst is the IEC 61937 FSM's packet callback. While in UNKNOWN, any
// burst is discarded because no sink is open yet; while in IEC61937,
// only AC-3 payloads are forwarded (pause and extended bursts are
// silently dropped); while in PCM bursts are discarded too. The FSM
// runs over a whole chunk before the mode transition that chunk
// triggers, so a burst completing in the switching chunk is dropped.
func (a *Arbiter) onBurst(b iec61937.Burst) {
	if a.mode != ModeIEC61937 {
		return
	}
	if b.DataType != 0x01 {
		return
	}
	if a.active.ac3 != nil {
		a.active.ac3.Process(b.Payload)
	}
}

// ProcessChunk feeds one fixed-size capture chunk through the arbiter.
// chunk's length must be a multiple of 2 (enforced by the caller's use
// of a fixed 512-byte chunk).
func (a *Arbiter) ProcessChunk(chunk []byte) {
	locked := a.runFSM(chunk)

	switch a.mode {
	case ModeUnknown:
		a.stepUnknown(locked)
	case ModePCM:
		a.stepPCM(chunk, locked)
	case ModeIEC61937:
		a.stepIEC61937(locked)
	}
}

// runFSM steps the IEC 61937 FSM over every sample in the chunk and
// reports whether any step reported "locked".
func (a *Arbiter) runFSM(chunk []byte) bool {
	locked := false
	for i := 0; i+1 < len(chunk); i += 2 {
		sample := uint16(chunk[i]) | uint16(chunk[i+1])<<8
		if a.fsm.Step(sample) {
			locked = true
		}
	}
	return locked
}

func (a *Arbiter) stepUnknown(locked bool) {
	if locked {
		log.Printf("arbiter: found an IEC 61937 stream")
		a.nonLockCount = 0
		a.mode = ModeIEC61937
		a.openAC3()
		return
	}

	a.nonLockCount++
	if a.nonLockCount >= a.cfg.DetectionWindow {
		log.Printf("arbiter: received %d chunks without a single IEC 61937 data burst; assuming PCM",
			a.cfg.DetectionWindow)
		a.mode = ModePCM
		a.openPCM()
	}
}

func (a *Arbiter) stepPCM(chunk []byte, locked bool) {
	if locked {
		log.Printf("arbiter: found IEC 61937 stream; switching from PCM")
		a.closePCM()
		a.nonLockCount = 0
		a.mode = ModeIEC61937
		a.openAC3()
		return
	}

	if a.active.pcm != nil {
		a.active.pcm.Process(chunk)
	}
}

func (a *Arbiter) stepIEC61937(locked bool) {
	if locked {
		a.nonLockCount = 0
		return
	}

	a.nonLockCount++
	if a.nonLockCount >= a.cfg.DetectionWindow {
		log.Printf("arbiter: received %d chunks without a single IEC 61937 data burst; switching to PCM",
			a.cfg.DetectionWindow)
		a.mode = ModePCM
		a.closeAC3()
		a.openPCM()
	}
}

func (a *Arbiter) openPCM() {
	s, err := a.factory.OpenPCM(a.cfg.PCM, a.latencyMicros)
	if err != nil {
		log.Printf("arbiter: could not open PCM sink: %v", err)
		return
	}
	a.active.pcm = s
}

func (a *Arbiter) closePCM() {
	if a.active.pcm == nil {
		return
	}
	a.active.pcm.Close()
	a.active.pcm = nil
}

func (a *Arbiter) openAC3() {
	s, err := a.factory.OpenAC3(a.cfg.AC3, a.latencyMicros)
	if err != nil {
		log.Printf("arbiter: could not open AC-3 sink: %v", err)
		return
	}
	a.active.ac3 = s
}

func (a *Arbiter) closeAC3() {
	if a.active.ac3 == nil {
		return
	}
	a.active.ac3.Close()
	a.active.ac3 = nil
}

// Close tears down whichever sink is currently open. Used for process
// shutdown; not part of the steady-state transition table.
func (a *Arbiter) Close() {
	a.closePCM()
	a.closeAC3()
}
