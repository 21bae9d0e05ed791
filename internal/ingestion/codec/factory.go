package codec

import (
	"fmt"
	"sync"

	"github.com/zsiec/refract/internal/ingestion/memory"
	"github.com/zsiec/refract/internal/ingestion/security"
)

// DepacketizerFactory creates depacketizers for different codecs
type DepacketizerFactory struct {
	mu            sync.RWMutex
	registry      map[Type]func(streamID string) Depacketizer
	memController *memory.Controller
	codecLimits   map[Type]int64
}

// NewDepacketizerFactory creates a new depacketizer factory with default codecs
func NewDepacketizerFactory(memController *memory.Controller) *DepacketizerFactory {
	f := &DepacketizerFactory{
		registry:      make(map[Type]func(streamID string) Depacketizer),
		memController: memController,
		codecLimits: map[Type]int64{
			TypeVP9: security.MaxFrameSize,
		},
	}

	f.RegisterDefaults()

	return f
}

// RegisterDefaults registers all built-in depacketizers
func (f *DepacketizerFactory) RegisterDefaults() {
	// If memory controller is nil, use regular depacketizers
	if f.memController == nil {
		f.Register(TypeVP9, func(streamID string) Depacketizer {
			return NewVP9Depacketizer()
		})
		return
	}

	f.Register(TypeVP9, func(streamID string) Depacketizer {
		return NewVP9DepacketizerWithMemory(streamID, f.memController, f.codecLimits[TypeVP9])
	})
}

// Register adds a depacketizer creator for a codec type
func (f *DepacketizerFactory) Register(codecType Type, creator func(streamID string) Depacketizer) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.registry[codecType] = creator
}

// Create creates a new depacketizer for the given codec type and stream
func (f *DepacketizerFactory) Create(codecType Type, streamID string) (Depacketizer, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	creator, ok := f.registry[codecType]
	if !ok {
		return nil, fmt.Errorf("unsupported codec type: %s", codecType)
	}

	return creator(streamID), nil
}

// IsSupported checks if a codec type is supported
func (f *DepacketizerFactory) IsSupported(codecType Type) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, ok := f.registry[codecType]
	return ok
}

// SupportedCodecs returns a list of supported codec types
func (f *DepacketizerFactory) SupportedCodecs() []Type {
	f.mu.RLock()
	defer f.mu.RUnlock()

	codecs := make([]Type, 0, len(f.registry))
	for codecType := range f.registry {
		codecs = append(codecs, codecType)
	}

	return codecs
}

// Unregister removes a codec type from the factory
func (f *DepacketizerFactory) Unregister(codecType Type) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.registry, codecType)
}
