package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DebugEndpoints  bool          `mapstructure:"debug_endpoints"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or text
	Output     string `mapstructure:"output"` // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

type IngestionConfig struct {
	RTP    RTPConfig    `mapstructure:"rtp"`
	Codecs CodecsConfig `mapstructure:"codecs"`
	Memory MemoryConfig `mapstructure:"memory"`
}

type RTPConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ListenAddr     string        `mapstructure:"listen_addr"`
	Port           int           `mapstructure:"port"`
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxSessions    int           `mapstructure:"max_sessions"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	RateLimitBps   int64         `mapstructure:"rate_limit_bps"` // 0 disables the per-session limiter
	RTCPInterval   time.Duration `mapstructure:"rtcp_interval"`
}

type CodecsConfig struct {
	Preferred string `mapstructure:"preferred"`
}

type MemoryConfig struct {
	MaxTotal     int64 `mapstructure:"max_total"`      // Total memory limit in bytes
	MaxPerStream int64 `mapstructure:"max_per_stream"` // Per-stream memory limit in bytes
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")
	viper.SetConfigFile(configPath)

	// Environment variable override
	viper.SetEnvPrefix("REFRACT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.debug_endpoints", false)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 5)
	viper.SetDefault("logging.max_age", 30)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 9090)

	// RTP defaults
	viper.SetDefault("ingestion.rtp.enabled", true)
	viper.SetDefault("ingestion.rtp.listen_addr", "0.0.0.0")
	viper.SetDefault("ingestion.rtp.port", 5004)
	viper.SetDefault("ingestion.rtp.buffer_size", 2097152) // 2MB
	viper.SetDefault("ingestion.rtp.max_sessions", 30)
	viper.SetDefault("ingestion.rtp.session_timeout", "30s")
	viper.SetDefault("ingestion.rtp.rate_limit_bps", 0)
	viper.SetDefault("ingestion.rtp.rtcp_interval", "5s")

	// Codec defaults
	viper.SetDefault("ingestion.codecs.preferred", "VP9")

	// Memory defaults
	viper.SetDefault("ingestion.memory.max_total", 402653184)   // 384MB
	viper.SetDefault("ingestion.memory.max_per_stream", 12582912) // 12MB
}
