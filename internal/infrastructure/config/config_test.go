package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "1619", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:1619", cfg.Server.Addr())
	assert.Equal(t, 100, cfg.Bus.Capacity)
	assert.Equal(t, 100, cfg.Input.QueueBacklog)
	assert.Equal(t, 30*time.Second, cfg.RPC.DefaultTimeout.D())
	assert.Equal(t, 500*time.Millisecond, cfg.RPC.SafetyMargin.D())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.RateLimit.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"WAVESRV_SERVER_PORT":              "9000",
		"WAVESRV_SERVER_ALLOWED_ORIGINS":   "http://a,http://b",
		"WAVESRV_AUTH_KEY":                 "secret",
		"WAVESRV_BUS_CAPACITY":             "7",
		"WAVESRV_RPC_DEFAULT_TIMEOUT":      "5s",
		"WAVESRV_LOGGING_LEVEL":            "debug",
		"WAVESRV_RATE_LIMIT_ENABLED":       "false",
		"WAVESRV_REMOTE_BREAKER_TIMEOUT":   "2m",
		"WAVESRV_INPUT_RATE_PER_SECOND":    "12.5",
		"WAVESRV_REMOTE_BREAKER_THRESHOLD": "3",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "secret", cfg.Auth.Key)
	assert.Equal(t, 7, cfg.Bus.Capacity)
	assert.Equal(t, 5*time.Second, cfg.RPC.DefaultTimeout.D())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Remote.BreakerTimeout.D())
	assert.Equal(t, 12.5, cfg.Input.RatePerSecond)
	assert.Equal(t, uint32(3), cfg.Remote.BreakerThreshold)

	// untouched values keep their defaults
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 500*time.Millisecond, cfg.RPC.SafetyMargin.D())
}

func TestLoadFileFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "wavesrv.yaml",
			content: `
server:
  port: "7000"
bus:
  capacity: 50
rpc:
  default_timeout: 45s
`,
		},
		{
			name: "toml",
			file: "wavesrv.toml",
			content: `
[server]
port = "7000"

[bus]
capacity = 50

[rpc]
default_timeout = "45s"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, LoadFile(writeFile(t, tt.file, tt.content), cfg))

			assert.Equal(t, "7000", cfg.Server.Port)
			assert.Equal(t, 50, cfg.Bus.Capacity)
			assert.Equal(t, 45*time.Second, cfg.RPC.DefaultTimeout.D())
			assert.Equal(t, "127.0.0.1", cfg.Server.Host)
			assert.Equal(t, 100, cfg.Input.QueueBacklog)
		})
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "wavesrv.yml", "server:\n  port: \"7000\"\n  host: 0.0.0.0\n")
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("WAVESRV_SERVER_PORT", "7100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "7100", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadFileErrors(t *testing.T) {
	cfg := Default()
	assert.Error(t, LoadFile(writeFile(t, "wavesrv.json", "{}"), cfg))
	assert.Error(t, LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), cfg))
	assert.Error(t, LoadFile(writeFile(t, "bad.toml", "[server\nport="), cfg))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"empty port", func(cfg *Config) { cfg.Server.Port = "" }},
		{"zero capacity", func(cfg *Config) { cfg.Bus.Capacity = 0 }},
		{"ping after read wait", func(cfg *Config) { cfg.WS.PingInterval = cfg.WS.ReadWait }},
		{"margin exceeds timeout", func(cfg *Config) { cfg.RPC.SafetyMargin = cfg.RPC.DefaultTimeout }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestInvalidEnv(t *testing.T) {
	t.Setenv("WAVESRV_RPC_SAFETY_MARGIN", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestResolveKey(t *testing.T) {
	key, err := AuthConfig{Key: "direct"}.ResolveKey()
	require.NoError(t, err)
	assert.Equal(t, "direct", key)

	key, err = AuthConfig{KeyFile: writeFile(t, "authkey", "  fromfile\n")}.ResolveKey()
	require.NoError(t, err)
	assert.Equal(t, "fromfile", key)

	_, err = AuthConfig{KeyFile: writeFile(t, "empty", "\n")}.ResolveKey()
	assert.Error(t, err)
}
