package codec

// frameBuffer is the growable byte store a frame is accumulated in,
// together with the RTP timestamp of the fragment that opened it. The
// store is non-nil exactly while a reassembly is in progress; the
// timestamp is meaningful only then. No size bound is enforced here;
// the depacketizer imposes one before appending.
type frameBuffer struct {
	data      []byte
	timestamp uint32
}

// initialFrameBufferCap keeps small frames to a single allocation.
const initialFrameBufferCap = 4096

func (b *frameBuffer) inProgress() bool {
	return b.data != nil
}

// open allocates a fresh empty store, replacing any previous one, and
// records the timestamp the frame started at.
func (b *frameBuffer) open(timestamp uint32) {
	b.data = make([]byte, 0, initialFrameBufferCap)
	b.timestamp = timestamp
}

func (b *frameBuffer) append(fragment []byte) {
	b.data = append(b.data, fragment...)
}

func (b *frameBuffer) size() int {
	return len(b.data)
}

// take moves the accumulated bytes out and returns the buffer to idle.
func (b *frameBuffer) take() ([]byte, uint32) {
	data := b.data
	b.data = nil
	return data, b.timestamp
}

// discard releases the store without emitting. Calling it on an idle
// buffer is a no-op.
func (b *frameBuffer) discard() {
	b.data = nil
}
