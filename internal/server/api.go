package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/zsiec/refract/internal/errors"
	"github.com/zsiec/refract/internal/ingestion/rtp"
)

// StreamManager is the listener surface the stream API needs.
type StreamManager interface {
	Sessions() []*rtp.Session
	GetSession(streamID string) (*rtp.Session, bool)
	TerminateStream(streamID string) error
	PauseStream(streamID string) error
	ResumeStream(streamID string) error
}

// StreamInfo is the API representation of one ingest session.
type StreamInfo struct {
	ID              string    `json:"id"`
	Codec           string    `json:"codec"`
	SSRC            uint32    `json:"ssrc"`
	RemoteAddr      string    `json:"remote_addr"`
	Paused          bool      `json:"paused"`
	StartedAt       time.Time `json:"started_at"`
	PacketsReceived uint64    `json:"packets_received"`
	BytesReceived   uint64    `json:"bytes_received"`
	PacketsLost     uint64    `json:"packets_lost"`
	FramesAssembled uint64    `json:"frames_assembled"`
	FramesDiscarded uint64    `json:"frames_discarded"`
	PacketErrors    uint64    `json:"packet_errors"`
	Jitter          float64   `json:"jitter"`
}

// StreamStats is the detailed per-session statistics payload.
type StreamStats struct {
	StreamInfo
	RateLimitDrops   uint64 `json:"rate_limit_drops"`
	SequenceGaps     uint64 `json:"sequence_gaps"`
	MaxSequenceGap   uint16 `json:"max_sequence_gap"`
	ReorderedPackets uint64 `json:"reordered_packets"`
	LastSequence     uint16 `json:"last_sequence"`
	LastTimestamp    uint32 `json:"last_timestamp"`
}

// StreamAPI serves the /api/v1/streams endpoints.
type StreamAPI struct {
	server  *Server
	manager StreamManager
}

// NewStreamAPI creates the stream API bound to a listener.
func NewStreamAPI(server *Server, manager StreamManager) *StreamAPI {
	return &StreamAPI{server: server, manager: manager}
}

// RegisterRoutes mounts the stream API on the router.
func (a *StreamAPI) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/streams", a.handleListStreams).Methods("GET")
	api.HandleFunc("/streams/{id}", a.handleGetStream).Methods("GET")
	api.HandleFunc("/streams/{id}", a.handleDeleteStream).Methods("DELETE")
	api.HandleFunc("/streams/{id}/stats", a.handleStreamStats).Methods("GET")
	api.HandleFunc("/streams/{id}/pause", a.handlePauseStream).Methods("POST")
	api.HandleFunc("/streams/{id}/resume", a.handleResumeStream).Methods("POST")
}

func streamInfo(session *rtp.Session) StreamInfo {
	stats := session.GetStats()
	return StreamInfo{
		ID:              session.StreamID(),
		Codec:           session.Codec().String(),
		SSRC:            session.SSRC(),
		RemoteAddr:      session.RemoteAddr().String(),
		Paused:          session.IsPaused(),
		StartedAt:       stats.StartTime,
		PacketsReceived: stats.PacketsReceived,
		BytesReceived:   stats.BytesReceived,
		PacketsLost:     stats.PacketsLost,
		FramesAssembled: stats.FramesAssembled,
		FramesDiscarded: stats.FramesDiscarded,
		PacketErrors:    stats.PacketErrors,
		Jitter:          stats.Jitter,
	}
}

func (a *StreamAPI) handleListStreams(w http.ResponseWriter, r *http.Request) {
	sessions := a.manager.Sessions()
	streams := make([]StreamInfo, 0, len(sessions))
	for _, session := range sessions {
		streams = append(streams, streamInfo(session))
	}

	response := struct {
		Streams []StreamInfo `json:"streams"`
		Count   int          `json:"count"`
	}{Streams: streams, Count: len(streams)}

	if err := a.server.writeJSON(w, http.StatusOK, response); err != nil {
		a.server.logger.WithError(err).Error("Failed to encode streams response")
	}
}

func (a *StreamAPI) handleGetStream(w http.ResponseWriter, r *http.Request) {
	session, ok := a.manager.GetSession(mux.Vars(r)["id"])
	if !ok {
		a.server.writeError(w, r, apperrors.NewNotFoundError("stream"))
		return
	}

	if err := a.server.writeJSON(w, http.StatusOK, streamInfo(session)); err != nil {
		a.server.logger.WithError(err).Error("Failed to encode stream response")
	}
}

func (a *StreamAPI) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	session, ok := a.manager.GetSession(mux.Vars(r)["id"])
	if !ok {
		a.server.writeError(w, r, apperrors.NewNotFoundError("stream"))
		return
	}

	stats := session.GetStats()
	payload := StreamStats{
		StreamInfo:       streamInfo(session),
		RateLimitDrops:   stats.RateLimitDrops,
		SequenceGaps:     stats.SequenceGaps,
		MaxSequenceGap:   stats.MaxSequenceGap,
		ReorderedPackets: stats.ReorderedPackets,
		LastSequence:     stats.LastSequence,
		LastTimestamp:    stats.LastTimestamp,
	}

	if err := a.server.writeJSON(w, http.StatusOK, payload); err != nil {
		a.server.logger.WithError(err).Error("Failed to encode stream stats response")
	}
}

func (a *StreamAPI) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	streamID := mux.Vars(r)["id"]
	if err := a.manager.TerminateStream(streamID); err != nil {
		a.server.writeError(w, r, apperrors.NewNotFoundError("stream"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *StreamAPI) handlePauseStream(w http.ResponseWriter, r *http.Request) {
	streamID := mux.Vars(r)["id"]
	if err := a.manager.PauseStream(streamID); err != nil {
		a.server.writeError(w, r, apperrors.NewNotFoundError("stream"))
		return
	}

	a.writeStreamState(w, r, streamID)
}

func (a *StreamAPI) handleResumeStream(w http.ResponseWriter, r *http.Request) {
	streamID := mux.Vars(r)["id"]
	if err := a.manager.ResumeStream(streamID); err != nil {
		a.server.writeError(w, r, apperrors.NewNotFoundError("stream"))
		return
	}

	a.writeStreamState(w, r, streamID)
}

func (a *StreamAPI) writeStreamState(w http.ResponseWriter, r *http.Request, streamID string) {
	session, ok := a.manager.GetSession(streamID)
	if !ok {
		a.server.writeError(w, r, apperrors.NewNotFoundError("stream"))
		return
	}

	response := struct {
		ID     string `json:"id"`
		Paused bool   `json:"paused"`
	}{ID: streamID, Paused: session.IsPaused()}

	if err := a.server.writeJSON(w, http.StatusOK, response); err != nil {
		a.server.logger.WithError(err).Error("Failed to encode stream state response")
	}
}
