package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream ingestion metrics
	rtpSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtp_sessions_active_total",
		Help: "Number of active RTP sessions",
	})

	streamBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_ingestion_bytes_total",
		Help: "Total payload bytes received per stream",
	}, []string{"stream_id"})

	streamPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_ingestion_packets_total",
		Help: "Total RTP packets received per stream",
	}, []string{"stream_id"})

	streamPacketsLostTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stream_ingestion_packets_lost_total",
		Help: "Total RTP sequence gaps observed per stream",
	}, []string{"stream_id"})

	streamBitrate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stream_ingestion_bitrate",
		Help: "Current bitrate in bits per second",
	}, []string{"stream_id"})

	// Depacketization metrics
	framesAssembledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "depacketizer_frames_assembled_total",
		Help: "Total frames fully assembled per stream",
	}, []string{"stream_id", "codec"})

	framesDiscardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "depacketizer_frames_discarded_total",
		Help: "Total partial frames discarded, by reason",
	}, []string{"stream_id", "codec", "reason"})

	packetErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "depacketizer_packet_errors_total",
		Help: "Total packets rejected by the depacketizer, by kind",
	}, []string{"stream_id", "codec", "kind"})

	frameSizeBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "depacketizer_frame_size_bytes",
		Help:    "Size of assembled frames in bytes",
		Buckets: prometheus.ExponentialBuckets(256, 4, 10), // 256B to ~64MB
	}, []string{"stream_id", "codec"})

	// Session lifecycle metrics
	sessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rtp_session_duration_seconds",
		Help:    "RTP session duration in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s to ~16k seconds
	}, []string{"stream_id"})

	sessionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtp_sessions_rejected_total",
		Help: "Total RTP sessions rejected, by reason",
	}, []string{"reason"})
)

// Discard reasons for framesDiscardedTotal.
const (
	DiscardReasonTimestampChange = "timestamp_change"
	DiscardReasonOversize        = "oversize"
	DiscardReasonTeardown        = "teardown"
	DiscardReasonReset           = "reset"
)

// Packet rejection kinds for packetErrorsTotal.
const (
	PacketErrorMalformed   = "malformed"
	PacketErrorUnsupported = "unsupported"
	PacketErrorOversize    = "oversize"
)

// SetActiveRTPSessions sets the number of active RTP sessions
func SetActiveRTPSessions(count int) {
	rtpSessionsActive.Set(float64(count))
}

// UpdateStreamMetrics updates the per-stream transport counters
func UpdateStreamMetrics(streamID string, bytesReceived, packetsReceived, packetsLost int64, bitrate float64) {
	streamBytesTotal.WithLabelValues(streamID).Add(float64(bytesReceived))
	streamPacketsTotal.WithLabelValues(streamID).Add(float64(packetsReceived))
	streamPacketsLostTotal.WithLabelValues(streamID).Add(float64(packetsLost))
	streamBitrate.WithLabelValues(streamID).Set(bitrate)
}

// IncrementFramesAssembled increments the assembled frame counter and records its size
func IncrementFramesAssembled(streamID, codec string, sizeBytes int) {
	framesAssembledTotal.WithLabelValues(streamID, codec).Inc()
	frameSizeBytes.WithLabelValues(streamID, codec).Observe(float64(sizeBytes))
}

// IncrementFramesDiscarded increments the discarded frame counter
func IncrementFramesDiscarded(streamID, codec, reason string) {
	framesDiscardedTotal.WithLabelValues(streamID, codec, reason).Inc()
}

// IncrementPacketError increments the packet rejection counter
func IncrementPacketError(streamID, codec, kind string) {
	packetErrorsTotal.WithLabelValues(streamID, codec, kind).Inc()
}

// RecordSessionDuration records the duration of a finished session
func RecordSessionDuration(streamID string, duration float64) {
	sessionDuration.WithLabelValues(streamID).Observe(duration)
}

// IncrementSessionRejected increments the session rejection counter
func IncrementSessionRejected(reason string) {
	sessionsRejectedTotal.WithLabelValues(reason).Inc()
}
