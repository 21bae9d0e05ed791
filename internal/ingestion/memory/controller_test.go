package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_RequestAndRelease(t *testing.T) {
	c := NewController(1000, 500)

	require.NoError(t, c.RequestMemory("a", 300))
	assert.Equal(t, int64(300), c.GetUsage())
	assert.Equal(t, int64(300), c.GetStreamUsage("a"))

	c.ReleaseMemory("a", 300)
	assert.Zero(t, c.GetUsage())
	assert.Zero(t, c.GetStreamUsage("a"))
}

func TestController_PerStreamLimit(t *testing.T) {
	c := NewController(1000, 500)

	require.NoError(t, c.RequestMemory("a", 500))
	err := c.RequestMemory("a", 1)
	assert.ErrorIs(t, err, ErrStreamMemoryLimit)

	// A refused request must not leak into the counters.
	assert.Equal(t, int64(500), c.GetUsage())
	assert.Equal(t, int64(500), c.GetStreamUsage("a"))

	// Another stream still fits under the global limit.
	require.NoError(t, c.RequestMemory("b", 500))
}

func TestController_GlobalLimit(t *testing.T) {
	c := NewController(600, 500)

	require.NoError(t, c.RequestMemory("a", 400))
	err := c.RequestMemory("b", 400)
	assert.ErrorIs(t, err, ErrGlobalMemoryLimit)
	assert.Equal(t, int64(400), c.GetUsage())
	assert.Zero(t, c.GetStreamUsage("b"))
}

func TestController_ReleaseStream(t *testing.T) {
	c := NewController(1000, 500)

	require.NoError(t, c.RequestMemory("a", 200))
	require.NoError(t, c.RequestMemory("b", 100))

	c.ReleaseStream("a")
	assert.Equal(t, int64(100), c.GetUsage())
	assert.Zero(t, c.GetStreamUsage("a"))

	// Teardown of an unknown stream is a no-op.
	c.ReleaseStream("c")
	assert.Equal(t, int64(100), c.GetUsage())
}

func TestController_ConcurrentStreams(t *testing.T) {
	c := NewController(1<<20, 1<<20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if err := c.RequestMemory("shared", 10); err == nil {
					c.ReleaseMemory("shared", 10)
				}
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, c.GetUsage())
	assert.Zero(t, c.GetStreamUsage("shared"))
}

func TestController_Stats(t *testing.T) {
	c := NewController(1000, 500)
	require.NoError(t, c.RequestMemory("a", 100))
	c.ReleaseMemory("a", 50)

	stats := c.GetStats()
	assert.Equal(t, int64(50), stats.Usage)
	assert.Equal(t, int64(1000), stats.MaxMemory)
	assert.Equal(t, int64(500), stats.PerStreamLimit)
	assert.Equal(t, int64(1), stats.AllocationCount)
	assert.Equal(t, int64(1), stats.ReleaseCount)
}
