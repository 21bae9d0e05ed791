package health

import (
	"context"
	"fmt"
)

// IngestStatus is the view of the RTP listener the checker needs.
type IngestStatus interface {
	Running() bool
	SessionCount() int
	MaxSessions() int
}

// IngestChecker reports whether the RTP ingest path is accepting streams.
type IngestChecker struct {
	status IngestStatus
}

// NewIngestChecker creates an ingest health checker.
func NewIngestChecker(status IngestStatus) *IngestChecker {
	return &IngestChecker{status: status}
}

// Name implements Checker.
func (c *IngestChecker) Name() string {
	return "rtp_ingest"
}

// Check implements Checker.
func (c *IngestChecker) Check(ctx context.Context) error {
	if !c.status.Running() {
		return fmt.Errorf("rtp listener is not running")
	}

	sessions := c.status.SessionCount()
	limit := c.status.MaxSessions()
	if limit > 0 && sessions >= limit {
		return &DegradedError{
			Reason: fmt.Sprintf("session limit reached: %d of %d", sessions, limit),
		}
	}
	return nil
}
