package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Parse(nil))

	assert.Equal(t, "127.0.0.1:9999", cfg.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout.Duration)
	assert.Equal(t, uint32(16<<20), cfg.MaxPayload)
	assert.Empty(t, cfg.StatusAddr)
}

func TestParseFlags(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Parse([]string{"-addr", "0.0.0.0:7000", "-p", "7001", "-q", "-status-addr", "127.0.0.1:7080"}))

	assert.Equal(t, "0.0.0.0:7001", cfg.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:7080", cfg.StatusAddr)
}

func TestParseConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xacto.toml")
	content := `
addr = "127.0.0.1:8000"
shutdown-timeout = "3s"
max-payload = 1024
unknown-item = 1

[log]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := NewConfig()
	require.NoError(t, cfg.Parse([]string{"-config", path, "-L", "error"}))

	assert.Equal(t, "127.0.0.1:8000", cfg.Addr)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout.Duration)
	assert.Equal(t, uint32(1024), cfg.MaxPayload)
	// flags win over the file
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Len(t, cfg.WarningMsgs, 1)
	assert.Contains(t, cfg.WarningMsgs[0], "unknown-item")
}

func TestParseRejectsBadInput(t *testing.T) {
	assert.Error(t, NewConfig().Parse([]string{"-addr", "no-port"}))
	assert.Error(t, NewConfig().Parse([]string{"-p", "70000"}))
	assert.Error(t, NewConfig().Parse([]string{"stray"}))
	assert.Error(t, NewConfig().Parse([]string{"-config", filepath.Join(t.TempDir(), "missing.toml")}))
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("150ms")))
	assert.Equal(t, 150*time.Millisecond, d.Duration)
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	require.NoError(t, d.UnmarshalJSON([]byte(`"2s"`)))
	assert.Equal(t, 2*time.Second, d.Duration)
	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2s"`, string(out))
}

func TestSetupLogger(t *testing.T) {
	cfg := NewTestConfig()
	require.NoError(t, cfg.SetupLogger())
	assert.NotNil(t, cfg.GetZapLogger())
	assert.NotNil(t, cfg.GetZapLogProperties())
}
