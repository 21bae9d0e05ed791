package health

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	name string
	err  error
}

func (s *stubChecker) Name() string                    { return s.name }
func (s *stubChecker) Check(ctx context.Context) error { return s.err }

type slowChecker struct{}

func (s *slowChecker) Name() string { return "slow" }
func (s *slowChecker) Check(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return nil
	}
}

func newTestManager() *Manager {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewManager(log)
}

func TestManager_AllHealthy(t *testing.T) {
	m := newTestManager()
	m.Register(&stubChecker{name: "memory"})
	m.Register(&stubChecker{name: "rtp_ingest"})

	results := m.RunChecks(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusOK, results["memory"].Status)
	assert.Equal(t, StatusOK, results["rtp_ingest"].Status)
	assert.Equal(t, StatusOK, m.GetOverallStatus())
}

func TestManager_OneDown(t *testing.T) {
	m := newTestManager()
	m.Register(&stubChecker{name: "memory"})
	m.Register(&stubChecker{name: "rtp_ingest", err: fmt.Errorf("listener stopped")})

	results := m.RunChecks(context.Background())
	assert.Equal(t, StatusDown, results["rtp_ingest"].Status)
	assert.Equal(t, "listener stopped", results["rtp_ingest"].Message)
	assert.Equal(t, StatusDown, m.GetOverallStatus())
}

func TestManager_Degraded(t *testing.T) {
	m := newTestManager()
	m.Register(&stubChecker{name: "memory", err: &DegradedError{Reason: "assembly memory at 95% of limit"}})

	results := m.RunChecks(context.Background())
	assert.Equal(t, StatusDegraded, results["memory"].Status)
	assert.Equal(t, StatusDegraded, m.GetOverallStatus())
}

func TestManager_NoResultsIsDown(t *testing.T) {
	m := newTestManager()
	assert.Equal(t, StatusDown, m.GetOverallStatus())
}

func TestManager_CheckTimeout(t *testing.T) {
	m := newTestManager()
	m.Register(&slowChecker{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	results := m.RunChecks(ctx)
	require.Contains(t, results, "slow")
	assert.Equal(t, StatusDown, results["slow"].Status)
}

func TestManager_GetResultsCopies(t *testing.T) {
	m := newTestManager()
	m.Register(&stubChecker{name: "memory"})
	m.RunChecks(context.Background())

	results := m.GetResults()
	results["memory"].Status = StatusDown

	assert.Equal(t, StatusOK, m.GetResults()["memory"].Status)
}
