package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment variable, e.g. WAVESRV_SERVER_PORT.
const EnvPrefix = "WAVESRV"

// ConfigFileEnv names the optional YAML or TOML config file.
const ConfigFileEnv = "WAVESRV_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	WS        WSConfig        `yaml:"ws" toml:"ws"`
	Bus       BusConfig       `yaml:"bus" toml:"bus"`
	Input     InputConfig     `yaml:"input" toml:"input"`
	RPC       RPCConfig       `yaml:"rpc" toml:"rpc"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"ratelimit" toml:"ratelimit" split_words:"true"`
	Remote    RemoteConfig    `yaml:"remote" toml:"remote"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `yaml:"host" toml:"host"`
	Port            string   `yaml:"port" toml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins" toml:"allowed_origins" split_words:"true"`
	ReadTimeout     Duration `yaml:"read_timeout" toml:"read_timeout" split_words:"true"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" split_words:"true"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// AuthConfig holds the pre-shared key clients present in watchscreen frames.
type AuthConfig struct {
	Key     string `yaml:"key" toml:"key"`
	KeyFile string `yaml:"key_file" toml:"key_file" split_words:"true"`
}

// ResolveKey returns Key, or the trimmed contents of KeyFile.
func (a AuthConfig) ResolveKey() (string, error) {
	if a.Key != "" || a.KeyFile == "" {
		return a.Key, nil
	}
	data, err := os.ReadFile(a.KeyFile)
	if err != nil {
		return "", fmt.Errorf("reading auth key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", fmt.Errorf("auth key file %s is empty", a.KeyFile)
	}
	return key, nil
}

// WSConfig holds websocket transport settings.
type WSConfig struct {
	ReadLimit    int64    `yaml:"read_limit" toml:"read_limit" split_words:"true"`
	PingInterval Duration `yaml:"ping_interval" toml:"ping_interval" split_words:"true"`
	ReadWait     Duration `yaml:"read_wait" toml:"read_wait" split_words:"true"`
	WriteWait    Duration `yaml:"write_wait" toml:"write_wait" split_words:"true"`
	ChanSize     int      `yaml:"chan_size" toml:"chan_size" split_words:"true"`
}

// BusConfig holds model update bus settings.
type BusConfig struct {
	Capacity int `yaml:"capacity" toml:"capacity"`
}

// InputConfig holds settings for client input frames.
type InputConfig struct {
	QueueBacklog  int     `yaml:"queue_backlog" toml:"queue_backlog" split_words:"true"`
	Workers       int     `yaml:"workers" toml:"workers"`
	RatePerSecond float64 `yaml:"rate_per_second" toml:"rate_per_second" split_words:"true"`
	Burst         int     `yaml:"burst" toml:"burst"`
}

// RPCConfig holds user input request settings.
type RPCConfig struct {
	DefaultTimeout Duration `yaml:"default_timeout" toml:"default_timeout" split_words:"true"`
	SafetyMargin   Duration `yaml:"safety_margin" toml:"safety_margin" split_words:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string   `yaml:"level" toml:"level"`
	Development bool     `yaml:"development" toml:"development"`
	OutputPaths []string `yaml:"output_paths" toml:"output_paths" split_words:"true"`
}

// RateLimitConfig holds per-IP HTTP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `yaml:"requests_per_second" toml:"requests_per_second" split_words:"true"`
	Burst             int  `yaml:"burst" toml:"burst"`
	Enabled           bool `yaml:"enabled" toml:"enabled"`
}

// RemoteConfig holds defaults for new remotes.
type RemoteConfig struct {
	Shell            string   `yaml:"shell" toml:"shell"`
	WorkingDir       string   `yaml:"working_dir" toml:"working_dir" split_words:"true"`
	Cols             int      `yaml:"cols" toml:"cols"`
	Rows             int      `yaml:"rows" toml:"rows"`
	MaxRemotes       int      `yaml:"max_remotes" toml:"max_remotes" split_words:"true"`
	BreakerThreshold uint32   `yaml:"breaker_threshold" toml:"breaker_threshold" split_words:"true"`
	BreakerTimeout   Duration `yaml:"breaker_timeout" toml:"breaker_timeout" split_words:"true"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            "1619",
			AllowedOrigins:  []string{"http://localhost:*", "http://127.0.0.1:*"},
			ReadTimeout:     Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		WS: WSConfig{
			ReadLimit:    128 * 1024,
			PingInterval: Duration(10 * time.Second),
			ReadWait:     Duration(15 * time.Second),
			WriteWait:    Duration(10 * time.Second),
			ChanSize:     10,
		},
		Bus: BusConfig{
			Capacity: 100,
		},
		Input: InputConfig{
			QueueBacklog:  100,
			Workers:       8,
			RatePerSecond: 200,
			Burst:         400,
		},
		RPC: RPCConfig{
			DefaultTimeout: Duration(30 * time.Second),
			SafetyMargin:   Duration(500 * time.Millisecond),
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
			OutputPaths: []string{"stdout"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Remote: RemoteConfig{
			Cols:             80,
			Rows:             24,
			MaxRemotes:       64,
			BreakerThreshold: 5,
			BreakerTimeout:   Duration(10 * time.Second),
		},
	}
}

// Load builds the configuration: defaults, then the file named by
// WAVESRV_CONFIG if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML (.yaml, .yml) or TOML (.toml) file onto cfg.
// Keys missing from the file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port == "" {
		problems = append(problems, "server.port is empty")
	}
	if c.Bus.Capacity <= 0 {
		problems = append(problems, "bus.capacity must be positive")
	}
	if c.Input.QueueBacklog <= 0 || c.Input.Workers <= 0 {
		problems = append(problems, "input.queue_backlog and input.workers must be positive")
	}
	if c.WS.ChanSize <= 0 || c.WS.ReadLimit <= 0 {
		problems = append(problems, "ws.chan_size and ws.read_limit must be positive")
	}
	if c.WS.PingInterval.D() >= c.WS.ReadWait.D() {
		problems = append(problems, "ws.ping_interval must be shorter than ws.read_wait")
	}
	if c.RPC.SafetyMargin.D() < 0 || c.RPC.DefaultTimeout.D() <= c.RPC.SafetyMargin.D() {
		problems = append(problems, "rpc.default_timeout must exceed rpc.safety_margin")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Duration is a time.Duration written as "10s" in files and environment.
type Duration time.Duration

func (d Duration) D() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
