package rtp

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/randutil"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"golang.org/x/time/rate"

	"github.com/zsiec/refract/internal/ingestion/codec"
	"github.com/zsiec/refract/internal/logger"
	"github.com/zsiec/refract/internal/metrics"
)

// FrameHandler receives every frame a session assembles. Returning an
// error does not stop the session; the frame is simply dropped.
type FrameHandler func(streamID string, frame *codec.Frame) error

// rtcpSender transmits a compound RTCP packet to the session's source.
type rtcpSender func(addr *net.UDPAddr, pkts []rtcp.Packet) error

// maxSequenceReorder is the backward distance, in sequence numbers,
// still counted as reordering rather than a wraparound jump forward.
const maxSequenceReorder = 3000

// SessionStats tracks per-session transport counters. Sequence gaps are
// observational only; loss never interrupts frame assembly.
type SessionStats struct {
	PacketsReceived     uint64
	BytesReceived       uint64
	PacketsLost         uint64
	RateLimitDrops      uint64
	FramesAssembled     uint64
	FramesDiscarded     uint64
	PacketErrors        uint64
	LastSequence        uint16
	SequenceInitialized bool
	SequenceGaps        uint64
	MaxSequenceGap      uint16
	ReorderedPackets    uint64
	Jitter              float64
	LastTimestamp       uint32
	lastTransit         int64
	StartTime           time.Time
	LastPacketTime      time.Time

	// Deltas for the periodic stats reporter
	lastBytes     uint64
	lastPackets   uint64
	lastLost      uint64
	lastStatsTime time.Time

	// Deltas for receiver report fraction-lost intervals
	lastRRReceived uint64
	lastRRLost     uint64
}

// Session consumes RTP packets from one SSRC and turns them into
// complete encoded frames.
type Session struct {
	streamID     string
	remoteAddr   *net.UDPAddr
	ssrc         uint32
	localSSRC    uint32
	codecType    codec.Type
	depacketizer codec.Depacketizer
	rateLimiter  *rate.Limiter
	logger       logger.Logger
	frameHandler FrameHandler
	sendRTCP     rtcpSender
	rtcpInterval time.Duration

	stats   SessionStats
	statsMu sync.Mutex

	lastPacket atomic.Int64 // unix nanos
	paused     atomic.Bool
	timeout    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession creates a session for one RTP source.
func NewSession(streamID string, remoteAddr *net.UDPAddr, ssrc uint32,
	codecType codec.Type, factory *codec.DepacketizerFactory, log logger.Logger) (*Session, error) {

	depacketizer, err := factory.Create(codecType, streamID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()

	s := &Session{
		streamID:     streamID,
		remoteAddr:   remoteAddr,
		ssrc:         ssrc,
		localSSRC:    randutil.NewMathRandomGenerator().Uint32(),
		codecType:    codecType,
		depacketizer: depacketizer,
		logger:       log.WithField("stream_id", streamID),
		rtcpInterval: 5 * time.Second,
		timeout:      30 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
	}
	s.stats.StartTime = now
	s.stats.lastStatsTime = now
	s.lastPacket.Store(now.UnixNano())

	return s, nil
}

// SetRateLimiter installs a payload byte-rate limiter. Nil disables it.
func (s *Session) SetRateLimiter(limiter *rate.Limiter) {
	s.rateLimiter = limiter
}

// SetTimeout sets the idle duration after which the session is reaped.
func (s *Session) SetTimeout(timeout time.Duration) {
	s.timeout = timeout
}

// SetFrameHandler sets the callback for assembled frames.
func (s *Session) SetFrameHandler(handler FrameHandler) {
	s.frameHandler = handler
}

// SetRTCPInterval sets the receiver report cadence.
func (s *Session) SetRTCPInterval(interval time.Duration) {
	if interval > 0 {
		s.rtcpInterval = interval
	}
}

func (s *Session) setRTCPSender(send rtcpSender) {
	s.sendRTCP = send
}

// Start launches the session's background reporters.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.reportStats()

	if s.sendRTCP != nil {
		s.wg.Add(1)
		go s.reportRTCP()
	}
}

// Stop terminates the session and closes the depacketizer, releasing
// any partially assembled frame and the stream's memory accounting.
func (s *Session) Stop() {
	s.cancel()
	s.wg.Wait()

	s.recordReset(metrics.DiscardReasonTeardown)
	s.depacketizer.Close()

	s.statsMu.Lock()
	duration := time.Since(s.stats.StartTime).Seconds()
	s.statsMu.Unlock()
	metrics.RecordSessionDuration(s.streamID, duration)

	s.logger.Info("RTP session stopped")
}

// Pause suspends packet processing without tearing down the session.
func (s *Session) Pause() {
	s.paused.Store(true)
	s.logger.Info("RTP session paused")
}

// Resume re-enables packet processing. The depacketizer is reset so a
// partial frame from before the pause cannot absorb unrelated fragments.
func (s *Session) Resume() {
	s.recordReset(metrics.DiscardReasonReset)
	s.paused.Store(false)
	s.logger.Info("RTP session resumed")
}

// recordReset resets the depacketizer and, if that dropped a partial
// frame, counts the discard under the given reason.
func (s *Session) recordReset(reason string) {
	if !s.depacketizer.Reset() {
		return
	}
	s.statsMu.Lock()
	s.stats.FramesDiscarded++
	s.statsMu.Unlock()
	metrics.IncrementFramesDiscarded(s.streamID, s.codecType.String(), reason)
}

// IsPaused reports whether the session is currently paused.
func (s *Session) IsPaused() bool {
	return s.paused.Load()
}

// IsActive reports whether the session received a packet within its
// timeout window.
func (s *Session) IsActive() bool {
	last := time.Unix(0, s.lastPacket.Load())
	return time.Since(last) < s.timeout
}

// StreamID returns the session's stream identifier.
func (s *Session) StreamID() string {
	return s.streamID
}

// SSRC returns the synchronization source this session is bound to.
func (s *Session) SSRC() uint32 {
	return s.ssrc
}

// Codec returns the session's codec type.
func (s *Session) Codec() codec.Type {
	return s.codecType
}

// RemoteAddr returns the source address of the session.
func (s *Session) RemoteAddr() *net.UDPAddr {
	return s.remoteAddr
}

// GetStats returns a snapshot of the session statistics.
func (s *Session) GetStats() SessionStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// ProcessPacket feeds one RTP packet through the depacketizer.
func (s *Session) ProcessPacket(packet *rtp.Packet) {
	if s.paused.Load() {
		return
	}

	s.lastPacket.Store(time.Now().UnixNano())

	if s.rateLimiter != nil && !s.rateLimiter.AllowN(time.Now(), len(packet.Payload)) {
		s.statsMu.Lock()
		s.stats.RateLimitDrops++
		s.statsMu.Unlock()
		return
	}

	s.updateTransportStats(packet)

	discardsBefore := s.depacketizer.Discarded()
	frame, err := s.depacketizer.Depacketize(packet)
	if dropped := s.depacketizer.Discarded() - discardsBefore; dropped > 0 {
		// The tail of the previous frame never arrived.
		s.statsMu.Lock()
		s.stats.FramesDiscarded += dropped
		s.statsMu.Unlock()
		metrics.IncrementFramesDiscarded(s.streamID, s.codecType.String(), metrics.DiscardReasonTimestampChange)
		s.logger.WithField("timestamp", packet.Timestamp).Debug("Discarded partial frame on timestamp change")
	}
	if err != nil {
		s.recordDepacketizeError(packet, err)
		return
	}
	if frame == nil {
		return
	}

	s.statsMu.Lock()
	s.stats.FramesAssembled++
	s.statsMu.Unlock()
	metrics.IncrementFramesAssembled(s.streamID, s.codecType.String(), len(frame.Data))

	if s.frameHandler != nil {
		if err := s.frameHandler(s.streamID, frame); err != nil {
			s.logger.WithError(err).Warn("Frame handler rejected frame")
		}
	}
}

func (s *Session) updateTransportStats(packet *rtp.Packet) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.stats.PacketsReceived++
	s.stats.BytesReceived += uint64(len(packet.Payload))
	s.stats.LastPacketTime = time.Now()

	seq := packet.SequenceNumber
	if !s.stats.SequenceInitialized {
		s.stats.SequenceInitialized = true
		s.stats.LastSequence = seq
	} else {
		// Wraparound-safe distance from the previous packet
		delta := seq - s.stats.LastSequence
		switch {
		case delta == 1:
			s.stats.LastSequence = seq
		case delta == 0:
			// Duplicate, nothing to track
		case delta < maxSequenceReorder:
			gap := delta - 1
			s.stats.SequenceGaps++
			s.stats.PacketsLost += uint64(gap)
			if gap > s.stats.MaxSequenceGap {
				s.stats.MaxSequenceGap = gap
			}
			s.stats.LastSequence = seq
		default:
			// Sequence moved backwards: late arrival
			s.stats.ReorderedPackets++
		}
	}

	s.updateJitter(packet)
	s.stats.LastTimestamp = packet.Timestamp
}

// updateJitter maintains the RFC 3550 interarrival jitter estimate in
// RTP timestamp units at a 90kHz clock.
func (s *Session) updateJitter(packet *rtp.Packet) {
	arrival := time.Now().UnixNano() / int64(time.Second/90000)
	transit := arrival - int64(packet.Timestamp)

	if s.stats.lastTransit != 0 {
		d := transit - s.stats.lastTransit
		if d < 0 {
			d = -d
		}
		s.stats.Jitter += (float64(d) - s.stats.Jitter) / 16
	}
	s.stats.lastTransit = transit
}

func (s *Session) recordDepacketizeError(packet *rtp.Packet, err error) {
	s.statsMu.Lock()
	s.stats.PacketErrors++
	s.statsMu.Unlock()

	var kind string
	switch {
	case errors.Is(err, codec.ErrFrameTooLarge):
		kind = metrics.PacketErrorOversize
		s.statsMu.Lock()
		s.stats.FramesDiscarded++
		s.statsMu.Unlock()
		metrics.IncrementFramesDiscarded(s.streamID, s.codecType.String(), metrics.DiscardReasonOversize)
	case errors.Is(err, codec.ErrUnsupportedLayout):
		kind = metrics.PacketErrorUnsupported
	default:
		kind = metrics.PacketErrorMalformed
	}
	metrics.IncrementPacketError(s.streamID, s.codecType.String(), kind)

	s.logger.WithError(err).WithFields(map[string]interface{}{
		"ssrc":     packet.SSRC,
		"sequence": packet.SequenceNumber,
		"kind":     kind,
	}).Debug("Packet rejected by depacketizer")
}

// ProcessRTCPPacket handles inbound RTCP from the sender.
func (s *Session) ProcessRTCPPacket(data []byte) {
	pkts, err := rtcp.Unmarshal(data)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to parse RTCP packet")
		return
	}

	for _, pkt := range pkts {
		switch p := pkt.(type) {
		case *rtcp.SenderReport:
			s.logger.WithFields(map[string]interface{}{
				"ntp_time":     p.NTPTime,
				"rtp_time":     p.RTPTime,
				"packet_count": p.PacketCount,
			}).Debug("Received RTCP sender report")
		case *rtcp.Goodbye:
			s.logger.Debug("Received RTCP goodbye")
		}
	}
}

// reportRTCP periodically sends a receiver report back to the source.
func (s *Session) reportRTCP() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.rtcpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			rr := s.buildReceiverReport()
			if err := s.sendRTCP(s.remoteAddr, []rtcp.Packet{rr}); err != nil {
				s.logger.WithError(err).Debug("Failed to send RTCP receiver report")
			}
		}
	}
}

func (s *Session) buildReceiverReport() *rtcp.ReceiverReport {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	// TotalLost is a 24-bit field
	totalLost := s.stats.PacketsLost
	if totalLost > 0x7FFFFF {
		totalLost = 0x7FFFFF
	}

	// Fraction lost over the interval since the previous report, as an
	// 8-bit fixed point fraction of the packets expected in it.
	lostInterval := s.stats.PacketsLost - s.stats.lastRRLost
	expectedInterval := (s.stats.PacketsReceived - s.stats.lastRRReceived) + lostInterval
	var fractionLost uint64
	if expectedInterval > 0 {
		fractionLost = lostInterval * 256 / expectedInterval
		if fractionLost > 0xFF {
			fractionLost = 0xFF
		}
	}
	s.stats.lastRRReceived = s.stats.PacketsReceived
	s.stats.lastRRLost = s.stats.PacketsLost

	return &rtcp.ReceiverReport{
		SSRC: s.localSSRC,
		Reports: []rtcp.ReceptionReport{
			{
				SSRC:               s.ssrc,
				FractionLost:       uint8(fractionLost),
				TotalLost:          uint32(totalLost),
				LastSequenceNumber: uint32(s.stats.LastSequence),
				Jitter:             uint32(s.stats.Jitter),
			},
		},
	}
}

// reportStats pushes per-session transport deltas to Prometheus.
func (s *Session) reportStats() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.statsMu.Lock()
			now := time.Now()
			deltaBytes := s.stats.BytesReceived - s.stats.lastBytes
			deltaPackets := s.stats.PacketsReceived - s.stats.lastPackets
			deltaLost := s.stats.PacketsLost - s.stats.lastLost
			elapsed := now.Sub(s.stats.lastStatsTime).Seconds()
			var bitrate float64
			if elapsed > 0 {
				bitrate = float64(deltaBytes) * 8 / elapsed
			}
			s.stats.lastBytes = s.stats.BytesReceived
			s.stats.lastPackets = s.stats.PacketsReceived
			s.stats.lastLost = s.stats.PacketsLost
			s.stats.lastStatsTime = now
			s.statsMu.Unlock()

			metrics.UpdateStreamMetrics(s.streamID,
				int64(deltaBytes), int64(deltaPackets), int64(deltaLost), bitrate)
		}
	}
}
