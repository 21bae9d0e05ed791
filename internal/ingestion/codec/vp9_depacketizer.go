package codec

import (
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/zsiec/refract/internal/ingestion/memory"
	"github.com/zsiec/refract/internal/ingestion/security"
)

// vp9MinPacketSize is the required descriptor byte plus at least one
// byte of codec payload.
const vp9MinPacketSize = 2

// VP9Depacketizer reassembles VP9 frames from RTP packets carrying the
// payload format of RFC 9628.
//
// It is a two-state machine: idle (no frame open) and accumulating
// (frame buffer open, started at a recorded timestamp). A packet whose
// descriptor has the B bit opens a frame, every packet with the frame's
// timestamp appends to it, and the E bit closes and emits it. A packet
// with a different timestamp while a frame is open means the tail of
// that frame was lost: the partial frame is dropped and the packet is
// re-evaluated as a potential frame start. Sequence numbers are not
// consulted; a same-timestamp retransmission is indistinguishable from
// a continuation.
type VP9Depacketizer struct {
	buf          frameBuffer
	maxFrameSize int
	discards     uint64
	mu           sync.Mutex
}

// NewVP9Depacketizer creates a VP9 depacketizer with the default frame
// size limit.
func NewVP9Depacketizer() Depacketizer {
	return &VP9Depacketizer{maxFrameSize: security.MaxFrameSize}
}

// Depacketize processes one RTP packet and returns the completed frame,
// if any. The packet is read-only and not retained.
func (d *VP9Depacketizer) Depacketize(packet *rtp.Packet) (*Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	payload := packet.Payload
	if len(payload) < vp9MinPacketSize {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", ErrMalformedPacket, len(payload), vp9MinPacketSize)
	}

	// Parse and validate before touching reassembly state, so a bad
	// packet never costs us the frame in progress.
	var desc VP9Descriptor
	headerLen, err := desc.Unmarshal(payload)
	if err != nil {
		return nil, err
	}

	// The descriptor's E bit and the RTP marker both signal end of
	// frame; a disagreement means broken framing at the sender.
	if desc.EndsFrame != packet.Marker {
		return nil, fmt.Errorf("%w: E bit %t does not match RTP marker %t", ErrMalformedPacket, desc.EndsFrame, packet.Marker)
	}

	if headerLen >= len(payload) {
		return nil, fmt.Errorf("%w: descriptor leaves no codec payload", ErrMalformedPacket)
	}
	fragment := payload[headerLen:]

	// Drop data of previous packets on a non-continuous (lossy) stream.
	if d.buf.inProgress() && d.buf.timestamp != packet.Timestamp {
		d.buf.discard()
		d.discards++
	}

	if !d.buf.inProgress() {
		if !desc.BeginsFrame {
			// Frame not started yet, need more packets.
			return nil, nil
		}
		d.buf.open(packet.Timestamp)
	}

	if d.buf.size()+len(fragment) > d.maxFrameSize {
		d.buf.discard()
		return nil, fmt.Errorf("%w: accumulation exceeds %d bytes", ErrFrameTooLarge, d.maxFrameSize)
	}
	d.buf.append(fragment)

	if !desc.EndsFrame {
		return nil, nil
	}

	data, timestamp := d.buf.take()
	return &Frame{Data: data, Timestamp: timestamp}, nil
}

// Discarded returns the number of partial frames dropped on a timestamp
// change.
func (d *VP9Depacketizer) Discarded() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discards
}

// Reset discards any frame in progress and returns to idle. It reports
// whether a partial frame was dropped.
func (d *VP9Depacketizer) Reset() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	dropped := d.buf.inProgress()
	d.buf.discard()
	return dropped
}

// Close discards any frame in progress. The plain depacketizer holds no
// other per-stream state.
func (d *VP9Depacketizer) Close() {
	d.Reset()
}

// VP9DepacketizerWithMemory extends VP9Depacketizer with memory
// accounting against a shared controller.
type VP9DepacketizerWithMemory struct {
	VP9Depacketizer
	streamID      string
	memController *memory.Controller
	currentUsage  int64
}

// NewVP9DepacketizerWithMemory creates a memory-aware VP9 depacketizer.
// limit caps a single frame's accumulation; the controller additionally
// enforces global and per-stream budgets.
func NewVP9DepacketizerWithMemory(streamID string, memController *memory.Controller, limit int64) Depacketizer {
	return &VP9DepacketizerWithMemory{
		VP9Depacketizer: VP9Depacketizer{maxFrameSize: int(limit)},
		streamID:        streamID,
		memController:   memController,
	}
}

// Depacketize charges the controller for the packet before processing
// and settles the account when a frame completes or processing fails.
func (d *VP9DepacketizerWithMemory) Depacketize(packet *rtp.Packet) (*Frame, error) {
	size := int64(len(packet.Payload))

	if err := d.memController.RequestMemory(d.streamID, size); err != nil {
		// Allocation refused: the frame in progress cannot be finished.
		d.VP9Depacketizer.Reset()
		d.releaseAll()
		return nil, fmt.Errorf("%w: %v", ErrFrameTooLarge, err)
	}
	d.currentUsage += size

	frame, err := d.VP9Depacketizer.Depacketize(packet)
	if err != nil {
		d.memController.ReleaseMemory(d.streamID, size)
		d.currentUsage -= size
		return nil, err
	}

	// Frame emitted: ownership moved to the caller, release everything
	// accumulated for it.
	if frame != nil {
		d.releaseAll()
	}
	return frame, nil
}

// Reset discards state and releases memory held for it.
func (d *VP9DepacketizerWithMemory) Reset() bool {
	dropped := d.VP9Depacketizer.Reset()
	d.releaseAll()
	return dropped
}

// Close discards state and removes the stream's accounting entry from
// the controller. Without this, session churn leaks one counter per
// stream ID.
func (d *VP9DepacketizerWithMemory) Close() {
	d.VP9Depacketizer.Reset()
	d.currentUsage = 0
	d.memController.ReleaseStream(d.streamID)
}

func (d *VP9DepacketizerWithMemory) releaseAll() {
	if d.currentUsage > 0 {
		d.memController.ReleaseMemory(d.streamID, d.currentUsage)
		d.currentUsage = 0
	}
}
