package rtp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"golang.org/x/time/rate"

	"github.com/zsiec/refract/internal/config"
	"github.com/zsiec/refract/internal/ingestion/codec"
	"github.com/zsiec/refract/internal/ingestion/security"
	"github.com/zsiec/refract/internal/logger"
	"github.com/zsiec/refract/internal/metrics"
)

// Listener receives RTP on a single UDP socket and demultiplexes
// packets into per-SSRC sessions. RTCP shares the convention of the
// next port up.
type Listener struct {
	config       *config.RTPConfig
	codecType    codec.Type
	factory      *codec.DepacketizerFactory
	rtpConn      *net.UDPConn
	rtcpConn     *net.UDPConn
	logger       logger.Logger
	frameHandler FrameHandler

	sessions map[string]*Session
	mu       sync.RWMutex
	running  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Configurable for testing
	cleanupInterval time.Duration
	sessionTimeout  time.Duration
}

// NewListener creates an RTP listener. The codec for new sessions comes
// from the codecs config; sources advertising anything else are never
// seen here since payload routing is purely by SSRC.
func NewListener(cfg *config.RTPConfig, codecsCfg *config.CodecsConfig,
	factory *codec.DepacketizerFactory, log logger.Logger) (*Listener, error) {

	codecType := codec.ParseType(codecsCfg.Preferred)
	if !codecType.IsValid() {
		return nil, fmt.Errorf("unsupported preferred codec: %s", codecsCfg.Preferred)
	}

	ctx, cancel := context.WithCancel(context.Background())

	l := &Listener{
		config:          cfg,
		codecType:       codecType,
		factory:         factory,
		logger:          log.WithField("component", "rtp_listener"),
		sessions:        make(map[string]*Session),
		ctx:             ctx,
		cancel:          cancel,
		cleanupInterval: 10 * time.Second,
		sessionTimeout:  30 * time.Second,
	}

	if cfg.SessionTimeout > 0 {
		l.sessionTimeout = cfg.SessionTimeout
	}

	return l, nil
}

// SetTestTimeouts sets shorter timeouts for testing
func (l *Listener) SetTestTimeouts(cleanupInterval, sessionTimeout time.Duration) {
	l.cleanupInterval = cleanupInterval
	l.sessionTimeout = sessionTimeout
}

// SetFrameHandler sets the handler passed to every new session.
func (l *Listener) SetFrameHandler(handler FrameHandler) {
	l.frameHandler = handler
}

// Start binds the RTP and RTCP sockets and launches the packet loops.
func (l *Listener) Start() error {
	rtpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", l.config.ListenAddr, l.config.Port))
	if err != nil {
		return fmt.Errorf("failed to resolve RTP address: %w", err)
	}

	rtpConn, err := net.ListenUDP("udp", rtpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on RTP port: %w", err)
	}

	if err := rtpConn.SetReadBuffer(l.config.BufferSize); err != nil {
		l.logger.WithError(err).Warn("Failed to set RTP read buffer size")
	}

	l.rtpConn = rtpConn

	rtcpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", l.config.ListenAddr, l.config.Port+1))
	if err != nil {
		rtpConn.Close()
		return fmt.Errorf("failed to resolve RTCP address: %w", err)
	}

	rtcpConn, err := net.ListenUDP("udp", rtcpAddr)
	if err != nil {
		rtpConn.Close()
		return fmt.Errorf("failed to listen on RTCP port: %w", err)
	}

	l.rtcpConn = rtcpConn
	l.running.Store(true)

	l.logger.WithFields(map[string]interface{}{
		"rtp_port":  l.config.Port,
		"rtcp_port": l.config.Port + 1,
		"address":   l.config.ListenAddr,
		"codec":     l.codecType,
	}).Info("RTP listener started")

	l.wg.Add(1)
	go l.routePackets()

	l.wg.Add(1)
	go l.handleRTCP()

	l.wg.Add(1)
	go l.cleanupSessions()

	return nil
}

// Stop closes the sockets and stops all sessions.
func (l *Listener) Stop() error {
	l.logger.Info("Stopping RTP listener")
	l.running.Store(false)
	l.cancel()

	if l.rtpConn != nil {
		l.rtpConn.Close()
	}
	if l.rtcpConn != nil {
		l.rtcpConn.Close()
	}

	l.wg.Wait()

	l.mu.Lock()
	for _, session := range l.sessions {
		session.Stop()
	}
	l.sessions = make(map[string]*Session)
	l.mu.Unlock()

	metrics.SetActiveRTPSessions(0)
	l.logger.Info("RTP listener stopped")
	return nil
}

// Running implements health.IngestStatus.
func (l *Listener) Running() bool {
	return l.running.Load()
}

// SessionCount implements health.IngestStatus.
func (l *Listener) SessionCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sessions)
}

// MaxSessions implements health.IngestStatus.
func (l *Listener) MaxSessions() int {
	return l.config.MaxSessions
}

// GetSession returns a session by stream ID.
func (l *Listener) GetSession(streamID string) (*Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, s := range l.sessions {
		if s.streamID == streamID {
			return s, true
		}
	}
	return nil, false
}

// Sessions returns all current sessions.
func (l *Listener) Sessions() []*Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sessions := make([]*Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// TerminateStream stops and removes one stream session.
func (l *Listener) TerminateStream(streamID string) error {
	l.mu.Lock()
	var sessionKey string
	var session *Session
	for key, s := range l.sessions {
		if s.streamID == streamID {
			sessionKey = key
			session = s
			break
		}
	}
	if session != nil {
		delete(l.sessions, sessionKey)
	}
	l.mu.Unlock()

	if session == nil {
		return fmt.Errorf("stream %s not found", streamID)
	}

	session.Stop()
	l.logger.WithField("stream_id", streamID).Info("Stream terminated")
	return nil
}

// PauseStream pauses data ingestion for a stream.
func (l *Listener) PauseStream(streamID string) error {
	session, ok := l.GetSession(streamID)
	if !ok {
		return fmt.Errorf("stream %s not found", streamID)
	}
	session.Pause()
	return nil
}

// ResumeStream resumes data ingestion for a paused stream.
func (l *Listener) ResumeStream(streamID string) error {
	session, ok := l.GetSession(streamID)
	if !ok {
		return fmt.Errorf("stream %s not found", streamID)
	}
	session.Resume()
	return nil
}

func (l *Listener) routePackets() {
	defer l.wg.Done()

	buf := make([]byte, security.MaxPacketSize)

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
			l.rtpConn.SetReadDeadline(time.Now().Add(time.Second))

			n, addr, err := l.rtpConn.ReadFromUDP(buf)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if l.ctx.Err() != nil {
					return
				}
				l.logger.WithError(err).Error("Failed to read RTP packet")
				continue
			}

			packet := &rtp.Packet{}
			if err := packet.Unmarshal(buf[:n]); err != nil {
				l.logger.WithError(err).Debug("Failed to parse RTP packet")
				continue
			}

			session := l.findOrCreateSession(addr, packet)
			if session != nil {
				session.ProcessPacket(packet)
			}
		}
	}
}

func (l *Listener) findOrCreateSession(addr *net.UDPAddr, packet *rtp.Packet) *Session {
	sessionKey := fmt.Sprintf("%s_%d", addr.String(), packet.SSRC)

	l.mu.RLock()
	session, exists := l.sessions[sessionKey]
	count := len(l.sessions)
	l.mu.RUnlock()

	if exists {
		return session
	}

	if count >= l.config.MaxSessions {
		metrics.IncrementSessionRejected("session_limit")
		l.logger.WithFields(map[string]interface{}{
			"remote_addr": addr.String(),
			"ssrc":        packet.SSRC,
		}).Warn("Session limit reached, dropping new source")
		return nil
	}

	streamID := fmt.Sprintf("rtp-%s", uuid.New().String()[:8])

	newSession, err := NewSession(streamID, addr, packet.SSRC, l.codecType, l.factory, l.logger)
	if err != nil {
		l.logger.WithError(err).Error("Failed to create RTP session")
		return nil
	}

	newSession.SetTimeout(l.sessionTimeout)
	newSession.SetFrameHandler(l.frameHandler)
	newSession.SetRTCPInterval(l.config.RTCPInterval)
	newSession.setRTCPSender(l.sendRTCP)
	if l.config.RateLimitBps > 0 {
		bytesPerSec := float64(l.config.RateLimitBps) / 8
		newSession.SetRateLimiter(rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec)))
	}

	l.mu.Lock()
	// Another packet may have raced the session in
	if existing, ok := l.sessions[sessionKey]; ok {
		l.mu.Unlock()
		newSession.Stop()
		return existing
	}
	l.sessions[sessionKey] = newSession
	count = len(l.sessions)
	l.mu.Unlock()

	newSession.Start()
	metrics.SetActiveRTPSessions(count)

	l.logger.WithFields(map[string]interface{}{
		"stream_id":   streamID,
		"remote_addr": addr.String(),
		"ssrc":        packet.SSRC,
	}).Info("New RTP session created")

	return newSession
}

func (l *Listener) cleanupSessions() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			var expired []*Session
			l.mu.Lock()
			for key, session := range l.sessions {
				if !session.IsActive() {
					delete(l.sessions, key)
					expired = append(expired, session)
				}
			}
			active := len(l.sessions)
			l.mu.Unlock()

			for _, session := range expired {
				l.logger.WithField("stream_id", session.streamID).Info("RTP session timed out")
				session.Stop()
			}

			metrics.SetActiveRTPSessions(active)
		}
	}
}

func (l *Listener) handleRTCP() {
	defer l.wg.Done()

	buf := make([]byte, security.MaxPacketSize)

	for {
		select {
		case <-l.ctx.Done():
			return
		default:
			l.rtcpConn.SetReadDeadline(time.Now().Add(time.Second))

			n, addr, err := l.rtcpConn.ReadFromUDP(buf)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if l.ctx.Err() != nil {
					return
				}
				l.logger.WithError(err).Debug("Failed to read RTCP packet")
				continue
			}

			l.mu.RLock()
			var targetSession *Session
			for _, session := range l.sessions {
				if session.remoteAddr.IP.Equal(addr.IP) {
					targetSession = session
					break
				}
			}
			l.mu.RUnlock()

			if targetSession != nil {
				targetSession.ProcessRTCPPacket(buf[:n])
			}
		}
	}
}

// sendRTCP marshals and transmits RTCP packets to the sender's RTCP
// port, assumed to be one above its RTP source port.
func (l *Listener) sendRTCP(addr *net.UDPAddr, pkts []rtcp.Packet) error {
	if l.rtcpConn == nil {
		return fmt.Errorf("rtcp socket not open")
	}

	data, err := rtcp.Marshal(pkts)
	if err != nil {
		return fmt.Errorf("failed to marshal RTCP: %w", err)
	}

	dst := &net.UDPAddr{IP: addr.IP, Port: addr.Port + 1}
	if _, err := l.rtcpConn.WriteToUDP(data, dst); err != nil {
		return fmt.Errorf("failed to send RTCP: %w", err)
	}
	return nil
}
