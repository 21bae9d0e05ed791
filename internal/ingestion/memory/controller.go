package memory

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrGlobalMemoryLimit indicates the global memory limit has been reached
	ErrGlobalMemoryLimit = errors.New("global memory limit exceeded")

	// ErrStreamMemoryLimit indicates a stream's memory limit has been reached
	ErrStreamMemoryLimit = errors.New("stream memory limit exceeded")
)

// Controller manages memory allocation and limits for frame reassembly.
// All accounting is atomic; a refused request leaves the counters
// unchanged.
type Controller struct {
	maxMemory      int64 // Total memory budget
	perStreamLimit int64 // Per-stream limit
	usage          atomic.Int64
	streamUsage    sync.Map // streamID -> *atomic.Int64

	// Metrics
	allocationCount atomic.Int64
	releaseCount    atomic.Int64

	// Stream initialization mutex
	streamInitMu sync.Mutex
}

// NewController creates a new memory controller
func NewController(maxMemory, perStreamLimit int64) *Controller {
	return &Controller{
		maxMemory:      maxMemory,
		perStreamLimit: perStreamLimit,
	}
}

// RequestMemory requests memory allocation for a stream
func (c *Controller) RequestMemory(streamID string, size int64) error {
	// Check global limit
	if c.usage.Add(size) > c.maxMemory {
		c.usage.Add(-size)
		return ErrGlobalMemoryLimit
	}

	// Check per-stream limit
	usage := c.getOrCreateStreamUsage(streamID)
	if usage.Add(size) > c.perStreamLimit {
		usage.Add(-size)
		c.usage.Add(-size)
		return ErrStreamMemoryLimit
	}

	c.allocationCount.Add(1)
	return nil
}

// ReleaseMemory releases memory previously granted to a stream
func (c *Controller) ReleaseMemory(streamID string, size int64) {
	if size <= 0 {
		return
	}

	c.usage.Add(-size)
	if usage, ok := c.streamUsage.Load(streamID); ok {
		usage.(*atomic.Int64).Add(-size)
	}
	c.releaseCount.Add(1)
}

// ReleaseStream releases everything a stream holds and forgets it.
// Called on stream teardown; any in-progress frame is gone with it.
func (c *Controller) ReleaseStream(streamID string) {
	if usage, ok := c.streamUsage.LoadAndDelete(streamID); ok {
		held := usage.(*atomic.Int64).Load()
		if held > 0 {
			c.usage.Add(-held)
		}
	}
}

// GetUsage returns the current global memory usage in bytes
func (c *Controller) GetUsage() int64 {
	return c.usage.Load()
}

// GetStreamUsage returns the current memory usage of one stream
func (c *Controller) GetStreamUsage(streamID string) int64 {
	if usage, ok := c.streamUsage.Load(streamID); ok {
		return usage.(*atomic.Int64).Load()
	}
	return 0
}

// Stats contains controller counters for diagnostics
type Stats struct {
	Usage           int64
	MaxMemory       int64
	PerStreamLimit  int64
	AllocationCount int64
	ReleaseCount    int64
}

// GetStats returns a snapshot of the controller's counters
func (c *Controller) GetStats() Stats {
	return Stats{
		Usage:           c.usage.Load(),
		MaxMemory:       c.maxMemory,
		PerStreamLimit:  c.perStreamLimit,
		AllocationCount: c.allocationCount.Load(),
		ReleaseCount:    c.releaseCount.Load(),
	}
}

func (c *Controller) getOrCreateStreamUsage(streamID string) *atomic.Int64 {
	if usage, ok := c.streamUsage.Load(streamID); ok {
		return usage.(*atomic.Int64)
	}

	// Double-checked creation so two packets for a new stream do not
	// race two counters into the map.
	c.streamInitMu.Lock()
	defer c.streamInitMu.Unlock()

	if usage, ok := c.streamUsage.Load(streamID); ok {
		return usage.(*atomic.Int64)
	}
	usage := &atomic.Int64{}
	c.streamUsage.Store(streamID, usage)
	return usage
}
