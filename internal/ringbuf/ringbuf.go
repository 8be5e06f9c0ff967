// Package ringbuf implements the fixed-size, power-of-two, mutex-plus-
// condition-variable ring buffer shared by the PCM and AC-3 sinks.
//
// Unlike a lock-free SPSC ring, this one favors simplicity: both index
// updates and fill/free queries happen under the same mutex, and the
// consumer blocks on a condition variable instead of spinning. At the
// block sizes and rates these sinks run at, that's cheap enough.
package ringbuf

import "sync"

// RingBuffer is a fixed-capacity circular buffer of float32 samples.
// Capacity must be a power of two; one slot is always left vacant so
// that a full buffer can be distinguished from an empty one.
type RingBuffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	data []float32
	mask uint32

	readIdx  uint32
	writeIdx uint32

	// run is cleared by Close to wake a blocked consumer without it
	// having consumed anything.
	run bool
}

// New allocates a ring buffer of the given capacity (must be a power of
// two) and seeds the indices so that the initial fill equals initialFill.
// Starting near the control loop's target fill avoids an empty-buffer
// startup transient.
func New(capacity int, initialFill int) *RingBuffer {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ringbuf: capacity must be a power of two")
	}
	rb := &RingBuffer{
		data: make([]float32, capacity),
		mask: uint32(capacity - 1),
		run:  true,
	}
	rb.cond = sync.NewCond(&rb.mu)
	rb.writeIdx = uint32(initialFill) & rb.mask
	rb.readIdx = 0
	return rb
}

// Lock/Unlock expose the buffer's mutex so callers (the sinks' producer
// side) can read Fill/Free and push samples as one atomic sequence that
// also covers their own state (SRC ratio, control-loop history).
func (rb *RingBuffer) Lock()   { rb.mu.Lock() }
func (rb *RingBuffer) Unlock() { rb.mu.Unlock() }

// Fill returns the number of queued samples. Caller must hold the lock.
func (rb *RingBuffer) Fill() int {
	return int((rb.writeIdx - rb.readIdx) & rb.mask)
}

// Free returns the number of samples that can be pushed without
// overrunning the consumer. Caller must hold the lock.
func (rb *RingBuffer) Free() int {
	return int(rb.mask) - rb.Fill()
}

// Push appends values to the buffer without bounds checking; the caller
// must have already ensured len(values) <= Free() (the AC-3 sink drops
// the whole frame rather than call Push with too much, the PCM sink
// truncates first). Caller must hold the lock; Push does not broadcast
// on its own — call Broadcast once the producer step is done.
func (rb *RingBuffer) Push(values []float32) {
	for _, v := range values {
		rb.data[rb.writeIdx] = v
		rb.writeIdx = (rb.writeIdx + 1) & rb.mask
	}
}

// Broadcast wakes any consumer blocked in PopBlock. The lock need not
// be held: the sinks call it right after Unlock, and the woken consumer
// re-checks the fill under the lock.
func (rb *RingBuffer) Broadcast() {
	rb.cond.Broadcast()
}

// PopBlock waits until at least len(dst) samples are available or the
// buffer is closed, then copies exactly len(dst) samples into dst and
// advances the read index. It returns false (without touching dst) if
// the buffer was closed while waiting.
func (rb *RingBuffer) PopBlock(dst []float32) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.Fill() < len(dst) && rb.run {
		rb.cond.Wait()
	}
	if !rb.run {
		return false
	}

	for i := range dst {
		dst[i] = rb.data[rb.readIdx]
		rb.readIdx = (rb.readIdx + 1) & rb.mask
	}
	return true
}

// Close clears the run flag and wakes any blocked consumer. It is safe
// to call once from the sink's close path, with the broadcast issued
// strictly after the flag is cleared and before the consumer goroutine
// is joined.
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	rb.run = false
	rb.cond.Broadcast()
	rb.mu.Unlock()
}
