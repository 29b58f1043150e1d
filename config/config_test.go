package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 0.30, cfg.Server.LossRate)
	require.Equal(t, 12, cfg.Client.Requests)
	require.Equal(t, 3, cfg.Client.MaxAttempts)
	require.Equal(t, 100*time.Millisecond, cfg.Client.RequestTimeout.Duration)
	require.Equal(t, time.Second, cfg.Client.HandshakeTimeout.Duration)
}

func TestLoad(t *testing.T) {
	require := require.New(t)

	data := []byte(`
server:
  address: "0.0.0.0:9000"
  loss_rate: 0.5
  min_delay: 1ms
  max_delay: 2ms
  max_handlers: 64
client:
  request_timeout: 250ms
  retransmit: false
console:
  address: "127.0.0.1:9001"
`)
	path := filepath.Join(t.TempDir(), "udprtt.yaml")
	require.NoError(os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(err)

	require.Equal("0.0.0.0:9000", cfg.Server.Address)
	require.Equal(0.5, cfg.Server.LossRate)
	require.Equal(time.Millisecond, cfg.Server.MinDelay.Duration)
	require.Equal(2*time.Millisecond, cfg.Server.MaxDelay.Duration)
	require.Equal(64, cfg.Server.MaxHandlers)
	require.Equal(250*time.Millisecond, cfg.Client.RequestTimeout.Duration)
	require.False(cfg.Client.Retransmit)
	require.Equal("127.0.0.1:9001", cfg.Console.Address)

	// untouched values keep their defaults
	require.Equal(time.Second, cfg.Client.HandshakeTimeout.Duration)
	require.Equal(12, cfg.Client.Requests)
	require.Empty(cfg.Monitor.Address)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"loss above one", "server:\n  loss_rate: 1.5\n"},
		{"negative loss", "server:\n  loss_rate: -0.1\n"},
		{"inverted delay", "server:\n  min_delay: 50ms\n  max_delay: 10ms\n"},
		{"bad address", "server:\n  address: nowhere\n"},
		{"zero attempts", "client:\n  max_attempts: 0\n"},
		{"zero timeout", "client:\n  request_timeout: 0s\n"},
		{"tos overflow", "client:\n  tos: 256\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestParseInvalidDuration(t *testing.T) {
	_, err := Parse([]byte("client:\n  request_timeout: soon\n"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidConfig)
}
