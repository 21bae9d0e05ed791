package security

// Memory and size limits to prevent DoS attacks. The wire format puts
// no bound on how many fragments a frame may span, so anything fed
// untrusted input must cap accumulation itself.
const (
	// Maximum sizes for various components
	MaxFrameSize  = 12 * 1024 * 1024 // 12MB max for a reassembled VP9 frame
	MaxPacketSize = 65536            // 64KB max for a single packet

	// MaxVP9DescriptorSize is the largest possible VP9 payload
	// descriptor: required byte + 2-byte picture ID + 2 layer bytes +
	// 3 P_DIFF bytes + SS byte + 1 resolution + N_G byte + 255 groups
	// of 4 bytes each. Used only as an allocation hint.
	MaxVP9DescriptorSize = 1 + 2 + 2 + 3 + 1 + 4 + 1 + 255*4
)
