// Package iec61937 implements the sample-level state machine that
// synchronizes on the IEC 61937 preamble, parses burst headers, and
// reassembles AC-3 frames out of an IEC 60958 sample stream.
package iec61937

// State enumerates the FSM's states in preamble-to-payload order. State
// ordering matters: Step reports locked once the state is past Sync1.
type State int

const (
	StateFirst0 State = iota
	StateSecond0
	StateThird0
	StateFourth0
	StateSync0
	StateSync1
	StateDataType
	StateLength
	StatePayload
)

const (
	syncWord0 = 0xF872
	syncWord1 = 0x4E1F

	dataTypeMask     = 0x7F
	dataTypeAC3      = 0x01
	dataTypeExtended = 0x1F

	// MaxPayloadBytes bounds the payload buffer. A 16-bit length field
	// measured in bits can address at most 65535/8 ≈ 8191 bytes for
	// AC-3, but the buffer is sized to IEC 61937's general payload
	// ceiling to match the original layout.
	MaxPayloadBytes = 65536
)

// Burst is the parsed, immutable view of one completed IEC 61937 data
// burst, valid only for the duration of the OnBurst callback: the
// payload is a borrowed slice, not a copy.
type Burst struct {
	DataType byte
	Payload  []byte
}

// Callback receives one completed burst. The Payload slice is owned by
// the FSM and is only valid until Callback returns.
type Callback func(b Burst)

// FSM parses one IEC 60958 sample stream into IEC 61937 bursts. It is
// not safe for concurrent use: exactly one caller is expected to feed
// it samples in order (the mode arbiter's chunk loop).
type FSM struct {
	state    State
	dataType byte
	length   int // parsed payload length, in bytes
	received int

	payload [MaxPayloadBytes]byte
	onBurst Callback
}

// New creates an FSM in its initial state, invoking cb for each
// completed AC-3 burst.
func New(cb Callback) *FSM {
	return &FSM{state: StateFirst0, onBurst: cb}
}

// State returns the FSM's current state, mainly for tests.
func (f *FSM) State() State { return f.state }

// Step processes one 16-bit sample, already byte-swapped from wire
// order: the on-wire 61937 stream is big-endian 16-bit within the
// little-endian S/PDIF carrier. It returns true iff the state after
// processing is beyond Sync1 — the "locked" signal used by the mode
// arbiter.
func (f *FSM) Step(sample uint16) bool {
	switch f.state {
	case StateFirst0:
		if sample == 0 {
			f.state = StateSecond0
		}
	case StateSecond0:
		f.state = f.zeroOrReset(sample, StateThird0)
	case StateThird0:
		f.state = f.zeroOrReset(sample, StateFourth0)
	case StateFourth0:
		f.state = f.zeroOrReset(sample, StateSync0)
	case StateSync0:
		switch sample {
		case 0:
			// Tolerate an arbitrary run of padding zeros.
		case syncWord0:
			f.state = StateSync1
		default:
			f.state = StateFirst0
		}
	case StateSync1:
		if sample == syncWord1 {
			f.state = StateDataType
		} else {
			f.state = StateFirst0
		}
	case StateDataType:
		f.dataType = byte(sample & dataTypeMask)
		f.state = StateLength
		if f.dataType == dataTypeExtended {
			f.state = StateFirst0
		}
	case StateLength:
		if f.dataType == dataTypeAC3 {
			f.received = 0
			f.length = int(sample / 8)
			f.state = StatePayload
		} else {
			f.state = StateFirst0
		}
	case StatePayload:
		f.stepPayload(sample)
	}

	return f.state > StateSync1
}

func (f *FSM) zeroOrReset(sample uint16, next State) State {
	if sample == 0 {
		return next
	}
	return StateFirst0
}

func (f *FSM) stepPayload(sample uint16) {
	remaining := f.length - f.received
	if remaining >= 2 {
		f.payload[f.received] = byte(sample >> 8)
		f.received++
		f.payload[f.received] = byte(sample)
		f.received++
	} else {
		// Only one byte of room remains; the low byte (an odd-length
		// pad) is discarded.
		f.payload[f.received] = byte(sample >> 8)
		f.received++
	}

	if f.received == f.length {
		if f.onBurst != nil {
			f.onBurst(Burst{DataType: f.dataType, Payload: f.payload[:f.received]})
		}
		f.state = StateFirst0
	}
}
