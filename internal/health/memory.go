package health

import (
	"context"
	"fmt"

	"github.com/zsiec/refract/internal/ingestion/memory"
)

// memoryDegradedRatio is the usage fraction above which assembly
// memory is reported degraded.
const memoryDegradedRatio = 0.9

// MemoryChecker reports the state of the frame assembly memory budget.
type MemoryChecker struct {
	controller *memory.Controller
}

// NewMemoryChecker creates a memory health checker.
func NewMemoryChecker(controller *memory.Controller) *MemoryChecker {
	return &MemoryChecker{controller: controller}
}

// Name implements Checker.
func (c *MemoryChecker) Name() string {
	return "memory"
}

// Check implements Checker.
func (c *MemoryChecker) Check(ctx context.Context) error {
	stats := c.controller.GetStats()
	if stats.MaxMemory <= 0 {
		return fmt.Errorf("memory controller has no limit configured")
	}

	ratio := float64(stats.Usage) / float64(stats.MaxMemory)
	if ratio >= 1.0 {
		return fmt.Errorf("assembly memory exhausted: %d of %d bytes in use", stats.Usage, stats.MaxMemory)
	}
	if ratio >= memoryDegradedRatio {
		return &DegradedError{
			Reason: fmt.Sprintf("assembly memory at %.0f%% of limit", ratio*100),
		}
	}
	return nil
}
