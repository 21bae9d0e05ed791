package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetActiveRTPSessions(t *testing.T) {
	SetActiveRTPSessions(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(rtpSessionsActive))

	SetActiveRTPSessions(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(rtpSessionsActive))
}

func TestUpdateStreamMetrics(t *testing.T) {
	UpdateStreamMetrics("m-stream-1", 1500, 10, 2, 400000)
	UpdateStreamMetrics("m-stream-1", 500, 5, 0, 200000)

	assert.Equal(t, float64(2000), testutil.ToFloat64(streamBytesTotal.WithLabelValues("m-stream-1")))
	assert.Equal(t, float64(15), testutil.ToFloat64(streamPacketsTotal.WithLabelValues("m-stream-1")))
	assert.Equal(t, float64(2), testutil.ToFloat64(streamPacketsLostTotal.WithLabelValues("m-stream-1")))
	assert.Equal(t, float64(200000), testutil.ToFloat64(streamBitrate.WithLabelValues("m-stream-1")))
}

func TestFrameCounters(t *testing.T) {
	IncrementFramesAssembled("m-stream-2", "VP9", 4096)
	IncrementFramesAssembled("m-stream-2", "VP9", 8192)
	assert.Equal(t, float64(2), testutil.ToFloat64(framesAssembledTotal.WithLabelValues("m-stream-2", "VP9")))

	IncrementFramesDiscarded("m-stream-2", "VP9", DiscardReasonTimestampChange)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(framesDiscardedTotal.WithLabelValues("m-stream-2", "VP9", DiscardReasonTimestampChange)))
	assert.Equal(t, float64(0),
		testutil.ToFloat64(framesDiscardedTotal.WithLabelValues("m-stream-2", "VP9", DiscardReasonOversize)))
}

func TestPacketErrorCounters(t *testing.T) {
	IncrementPacketError("m-stream-3", "VP9", PacketErrorMalformed)
	IncrementPacketError("m-stream-3", "VP9", PacketErrorMalformed)
	IncrementPacketError("m-stream-3", "VP9", PacketErrorUnsupported)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(packetErrorsTotal.WithLabelValues("m-stream-3", "VP9", PacketErrorMalformed)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(packetErrorsTotal.WithLabelValues("m-stream-3", "VP9", PacketErrorUnsupported)))
}

func TestSessionRejected(t *testing.T) {
	IncrementSessionRejected("session_limit")
	assert.Equal(t, float64(1), testutil.ToFloat64(sessionsRejectedTotal.WithLabelValues("session_limit")))
}
