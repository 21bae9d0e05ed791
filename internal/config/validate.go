package config

import (
	"fmt"
	"strings"
)

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Ingestion.Validate(); err != nil {
		return fmt.Errorf("ingestion config: %w", err)
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", s.HTTPPort)
	}

	if s.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive")
	}

	if s.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive")
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	switch strings.ToLower(l.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	switch l.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("log output is required")
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", m.Port)
	}

	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("metrics path must start with /: %s", m.Path)
	}

	return nil
}

func (i *IngestionConfig) Validate() error {
	if err := i.RTP.Validate(); err != nil {
		return fmt.Errorf("rtp: %w", err)
	}

	if err := i.Memory.Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}

	return nil
}

func (r *RTPConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("invalid port: %d", r.Port)
	}

	if r.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive")
	}

	if r.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive")
	}

	if r.SessionTimeout <= 0 {
		return fmt.Errorf("session_timeout must be positive")
	}

	if r.RateLimitBps < 0 {
		return fmt.Errorf("rate_limit_bps must not be negative")
	}

	if r.RTCPInterval <= 0 {
		return fmt.Errorf("rtcp_interval must be positive")
	}

	return nil
}

func (m *MemoryConfig) Validate() error {
	if m.MaxTotal <= 0 {
		return fmt.Errorf("max_total must be positive")
	}

	if m.MaxPerStream <= 0 {
		return fmt.Errorf("max_per_stream must be positive")
	}

	if m.MaxPerStream > m.MaxTotal {
		return fmt.Errorf("max_per_stream (%d) exceeds max_total (%d)", m.MaxPerStream, m.MaxTotal)
	}

	return nil
}
