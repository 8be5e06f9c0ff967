package iec61937

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// burstSamples synthesizes the sample sequence for one complete IEC
// 61937 burst carrying payload, with the given raw Pc data-type value
// (already limited to 7 bits by the caller where relevant).
func burstSamples(dataType byte, payload []byte) []uint16 {
	samples := []uint16{0, 0, 0, 0, syncWord0, syncWord1, uint16(dataType), uint16(len(payload) * 8)}
	for i := 0; i+1 < len(payload); i += 2 {
		samples = append(samples, uint16(payload[i])<<8|uint16(payload[i+1]))
	}
	if len(payload)%2 == 1 {
		last := payload[len(payload)-1]
		samples = append(samples, uint16(last)<<8) // low byte is don't-care padding
	}
	return samples
}

func feed(f *FSM, samples []uint16) []bool {
	locked := make([]bool, len(samples))
	for i, s := range samples {
		locked[i] = f.Step(s)
	}
	return locked
}

func TestSingleValidBurstRoundTrip(t *testing.T) {
	var got []Burst
	f := New(func(b Burst) {
		payload := make([]byte, len(b.Payload))
		copy(payload, b.Payload)
		got = append(got, Burst{DataType: b.DataType, Payload: payload})
	})

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	feed(f, burstSamples(dataTypeAC3, payload))

	require.Len(t, got, 1)
	assert.Equal(t, byte(dataTypeAC3), got[0].DataType)
	assert.Equal(t, payload, got[0].Payload)
	assert.Equal(t, StateFirst0, f.State())
}

func TestLockedGoesTrueOnlyPastSync1(t *testing.T) {
	f := New(nil)
	payload := []byte{0x01, 0x02}
	locked := feed(f, burstSamples(dataTypeAC3, payload))

	// Samples: 0,0,0,0,sync0,sync1,dataType,length,payload.
	// Locked is false through sync0 (index 4), which leaves the FSM in
	// Sync1, and true from sync1 (index 5), which moves it to DataType.
	// The single payload sample completes the burst and resets the FSM
	// to First0, so the last sample is not locked.
	for i := 0; i <= 4; i++ {
		assert.Falsef(t, locked[i], "sample %d should not be locked yet", i)
	}
	for i := 5; i < len(locked)-1; i++ {
		assert.Truef(t, locked[i], "sample %d should be locked", i)
	}
	assert.Falsef(t, locked[len(locked)-1], "sample %d completes the burst and resets the FSM", len(locked)-1)
}

func TestNBurstSequenceProducesNCallbacks(t *testing.T) {
	const n = 5
	count := 0
	f := New(func(b Burst) { count++ })

	payload := []byte{0x10, 0x20, 0x30, 0x40}
	for i := 0; i < n; i++ {
		feed(f, burstSamples(dataTypeAC3, payload))
	}

	assert.Equal(t, n, count)
	assert.Equal(t, StateFirst0, f.State())
}

func TestExtendedTypeResetsWithoutCallback(t *testing.T) {
	called := false
	f := New(func(b Burst) { called = true })

	samples := []uint16{0, 0, 0, 0, syncWord0, syncWord1, dataTypeExtended}
	feed(f, samples)

	assert.False(t, called)
	assert.Equal(t, StateFirst0, f.State())
}

func TestOddPayloadLengthDiscardsPadByte(t *testing.T) {
	var got Burst
	f := New(func(b Burst) {
		got = Burst{DataType: b.DataType, Payload: append([]byte(nil), b.Payload...)}
	})

	payload := []byte{0xAA, 0xBB, 0xCC} // length 3, odd
	feed(f, burstSamples(dataTypeAC3, payload))

	assert.Equal(t, payload, got.Payload)
	assert.Equal(t, StateFirst0, f.State())
}

func TestNonAC3DataTypeResetsWithoutCallback(t *testing.T) {
	called := false
	f := New(func(b Burst) { called = true })

	// Data type 0x03 (pause) is a real burst type but not AC-3; the FSM
	// only knows how to reassemble AC-3 payloads.
	samples := []uint16{0, 0, 0, 0, syncWord0, syncWord1, 0x03, 32, 0x1111, 0x2222, 0x3333, 0x4444}
	feed(f, samples)

	assert.False(t, called)
	assert.Equal(t, StateFirst0, f.State())
}

func TestSync0ToleratesArbitraryZeroRun(t *testing.T) {
	var got Burst
	f := New(func(b Burst) { got = Burst{DataType: b.DataType} })

	// More than four leading zeros before the sync word must still lock,
	// since StateSync0 tolerates an unbounded run of padding zeros.
	samples := []uint16{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, syncWord0, syncWord1, dataTypeAC3, 16, 0x1234, 0x5678}
	feed(f, samples)

	assert.Equal(t, byte(dataTypeAC3), got.DataType)
	assert.Equal(t, StateFirst0, f.State())
}

func TestGarbageDuringPreambleResetsToFirst0(t *testing.T) {
	f := New(nil)
	// A nonzero sample before the fourth padding zero must restart the
	// hunt for the preamble at First0.
	samples := []uint16{0, 0, 0x1234, 0}
	locked := feed(f, samples)

	assert.False(t, locked[len(locked)-1])
	assert.Equal(t, StateSecond0, f.State())
}

func TestBadSync1RestartsSearch(t *testing.T) {
	f := New(nil)
	samples := []uint16{0, 0, 0, 0, syncWord0, 0xBAAD}
	feed(f, samples)

	assert.Equal(t, StateFirst0, f.State())
}
