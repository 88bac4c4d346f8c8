package app

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfg := Config{}
	cfg.RegisterFlagsAndApplyDefaults("", flag.NewFlagSet("test", flag.ContinueOnError))

	assert.Equal(t, 3030, cfg.Server.HTTPListenPort)
	assert.Equal(t, 5*time.Second, cfg.Ripper.ReconnectBackoff)
	assert.False(t, cfg.Ripper.Framed)

	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
target: ripper
ripper:
  url: http://radio.example.com/stream.aac
  dir: /recordings
  framed: true
  resync: true
  reconnect-backoff: 1s
`), 0o644))

	require.NoError(t, LoadConfig(file, &cfg))

	assert.Equal(t, "ripper", cfg.Target)
	assert.Equal(t, "http://radio.example.com/stream.aac", cfg.Ripper.URL)
	assert.Equal(t, "/recordings", cfg.Ripper.Dir)
	assert.True(t, cfg.Ripper.Framed)
	assert.True(t, cfg.Ripper.Resync)
	assert.Equal(t, time.Second, cfg.Ripper.ReconnectBackoff)
	// Defaults survive the overlay.
	assert.Equal(t, 60*time.Second, cfg.Ripper.ReconnectBackoffMax)
	assert.Equal(t, 3030, cfg.Server.HTTPListenPort)
}

func TestLoadConfigStrict(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("ripper:\n  bogus: 1\n"), 0o644))

	cfg := Config{}
	require.Error(t, LoadConfig(file, &cfg))
}

func TestLoadConfigMissing(t *testing.T) {
	cfg := Config{}
	require.Error(t, LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), &cfg))
}
