package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/refract/internal/config"
)

func TestNew_JSONFormat(t *testing.T) {
	cfg := &config.LoggingConfig{
		Level:  "debug",
		Format: "json",
		Output: "stdout",
	}

	log, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.WithField("stream_id", "s1").Info("session started")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "session started", entry["message"])
	assert.Equal(t, "s1", entry["stream_id"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestNew_TextFormat(t *testing.T) {
	cfg := &config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}

	log, err := New(cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.Debug("should be suppressed")
	log.Info("visible")

	assert.NotContains(t, buf.String(), "suppressed")
	assert.Contains(t, buf.String(), "visible")
}

func TestNew_InvalidLevel(t *testing.T) {
	cfg := &config.LoggingConfig{
		Level:  "shouting",
		Format: "json",
		Output: "stdout",
	}

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "refract.log")
	cfg := &config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		Output:     path,
		MaxSize:    10,
		MaxBackups: 1,
		MaxAge:     1,
	}

	log, err := New(cfg)
	require.NoError(t, err)
	log.Info("written to file")

	assert.FileExists(t, path)
}

func TestLogrusAdapter_FieldsChain(t *testing.T) {
	base := logrus.New()
	var buf bytes.Buffer
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})

	adapter := NewLogrusAdapter(logrus.NewEntry(base))
	adapter.WithField("component", "rtp").
		WithFields(Fields{"ssrc": uint32(42)}).
		Info("packet received")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "rtp", entry["component"])
	assert.Equal(t, float64(42), entry["ssrc"])
}

func TestWithComponentAndStream(t *testing.T) {
	base := logrus.New()

	entry := WithComponent(base, "codec")
	assert.Equal(t, "codec", entry.Data["component"])

	entry = WithStream(base, "stream-1")
	assert.Equal(t, "stream-1", entry.Data["stream_id"])
}

func TestNullLogger_NoPanics(t *testing.T) {
	log := NewNullLogger()
	log.WithField("k", "v").WithFields(Fields{"a": 1}).WithError(assert.AnError).Info("dropped")
	log.Debugf("%d", 1)
	log.Fatal("does not exit")
}
