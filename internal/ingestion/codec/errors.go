package codec

import "errors"

// Depacketization error kinds. Callers distinguish them with errors.Is:
// a malformed packet means this packet is corrupt or truncated and was
// rejected, an unsupported layout means the stream uses a feature this
// implementation does not handle, a too-large frame means the current
// frame was abandoned to bound memory. None of them terminate the
// stream; processing the next packet is the only retry.
var (
	// ErrMalformedPacket indicates a packet that is truncated at some
	// parse step or violates a hard format rule. The packet is rejected;
	// any frame in progress is left untouched.
	ErrMalformedPacket = errors.New("malformed VP9 packet")

	// ErrUnsupportedLayout indicates a recognized layout this
	// depacketizer deliberately does not implement (a scalability
	// structure describing more than one spatial layer). Parsing stops
	// at the point of detection.
	ErrUnsupportedLayout = errors.New("unsupported VP9 layout")

	// ErrFrameTooLarge indicates the accumulated frame exceeded the
	// configured limit. The frame in progress is discarded and the
	// depacketizer returns to idle.
	ErrFrameTooLarge = errors.New("VP9 frame exceeds size limit")
)
