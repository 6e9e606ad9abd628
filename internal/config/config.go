package config

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jobtrail/jobtrail/internal/errors"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "jobtrail.json"

	// DefaultPort is the default listen port.
	DefaultPort = 8080

	// DefaultHost is the default listen host.
	DefaultHost = "localhost"

	// DefaultAPIBaseURL is where the listings API is expected in development.
	DefaultAPIBaseURL = "http://localhost:4000"

	// DefaultPageSize matches the listings table page size.
	DefaultPageSize = 50
)

// Export drivers.
const (
	DriverMemory = "memory"
	DriverDisk   = "disk"
	DriverS3     = "s3"
)

// Environment variable names read by ApplyEnv.
const (
	EnvAPIBaseURL = "JOBTRAIL_API_BASE_URL"
	EnvListen     = "JOBTRAIL_LISTEN"
	EnvLogLevel   = "JOBTRAIL_LOG_LEVEL"
)

// Config represents the complete jobtrail.json configuration.
type Config struct {
	// Server contains HTTP listener configuration.
	Server ServerConfig `json:"server"`

	// API points at the listings backend.
	API APIConfig `json:"api"`

	// Session contains per-page session settings.
	Session SessionConfig `json:"session"`

	// Export configures durable draft snapshots.
	Export ExportConfig `json:"export"`

	// Log configures the slog handler.
	Log LogConfig `json:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "10s").
	ShutdownTimeout string `json:"shutdownTimeout,omitempty"`

	// AllowedOrigins lists websocket origins accepted besides same-host.
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
}

// APIConfig contains listings API settings.
type APIConfig struct {
	// BaseURL is the listings API root.
	BaseURL string `json:"baseURL,omitempty"`

	// Timeout bounds each API call (e.g., "60s").
	Timeout string `json:"timeout,omitempty"`
}

// SessionConfig contains page session settings.
type SessionConfig struct {
	// SearchDebounce is the delay before typed search text reaches the URL.
	SearchDebounce string `json:"searchDebounce,omitempty"`

	// PageSize is the listings table page size.
	PageSize int `json:"pageSize,omitempty"`

	// IdleTimeout closes sessions with no requests for this long.
	IdleTimeout string `json:"idleTimeout,omitempty"`

	// Autosave is the quiet period before changed drafts are written to
	// the export store. "0s" disables it.
	Autosave string `json:"autosave,omitempty"`
}

// ExportConfig contains snapshot storage settings.
type ExportConfig struct {
	// Driver is one of memory, disk or s3.
	Driver string `json:"driver,omitempty"`

	// Dir is the snapshot directory for the disk driver.
	Dir string `json:"dir,omitempty"`

	// Bucket is required for the s3 driver.
	Bucket string `json:"bucket,omitempty"`

	// Prefix is prepended to object keys.
	Prefix string `json:"prefix,omitempty"`

	// Region is the AWS region.
	Region string `json:"region,omitempty"`

	// Endpoint is an S3-compatible endpoint such as MinIO.
	Endpoint string `json:"endpoint,omitempty"`

	// PathStyle enables path-style bucket addressing.
	PathStyle bool `json:"pathStyle,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ShutdownTimeout: "10s",
		},
		API: APIConfig{
			BaseURL: DefaultAPIBaseURL,
			Timeout: "60s",
		},
		Session: SessionConfig{
			SearchDebounce: "700ms",
			PageSize:       DefaultPageSize,
			IdleTimeout:    "30m",
			Autosave:       "2s",
		},
		Export: ExportConfig{
			Driver: DriverMemory,
			Dir:    "snapshots",
			Region: "us-east-1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the specified directory.
// It looks for jobtrail.json in the directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadOrDefault is Load, except that a missing file yields New().
func LoadOrDefault(dir string) (*Config, error) {
	if !Exists(dir) {
		return New(), nil
	}
	return Load(dir)
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("J042").
				WithDetail("No jobtrail.json found at " + path).
				WithSuggestion("Run 'jobtrail config init' to write the defaults")
		}
		return nil, errors.New("J043").Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("J043").
			WithDetail("Failed to parse jobtrail.json: " + err.Error()).
			WithSuggestion("Check that jobtrail.json is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("J043").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("J043").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := New()

	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	if c.API.Timeout == "" {
		c.API.Timeout = d.API.Timeout
	}

	if c.Session.SearchDebounce == "" {
		c.Session.SearchDebounce = d.Session.SearchDebounce
	}
	if c.Session.PageSize == 0 {
		c.Session.PageSize = d.Session.PageSize
	}
	if c.Session.IdleTimeout == "" {
		c.Session.IdleTimeout = d.Session.IdleTimeout
	}
	if c.Session.Autosave == "" {
		c.Session.Autosave = d.Session.Autosave
	}

	if c.Export.Driver == "" {
		c.Export.Driver = d.Export.Driver
	}
	if c.Export.Dir == "" {
		c.Export.Dir = d.Export.Dir
	}
	if c.Export.Region == "" {
		c.Export.Region = d.Export.Region
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// ApplyEnv overrides fields from JOBTRAIL_* environment variables.
func (c *Config) ApplyEnv() {
	c.applyEnv(os.Getenv)
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvAPIBaseURL); v != "" {
		c.API.BaseURL = v
	}
	if v := getenv(EnvListen); v != "" {
		host, port, err := net.SplitHostPort(v)
		if err == nil {
			c.Server.Host = host
			if p, err := strconv.Atoi(port); err == nil {
				c.Server.Port = p
			}
		}
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.New("J040").
			WithDetail("server.port must be between 0 and 65535")
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("J040").
			WithDetail("api.baseURL must be an absolute http(s) URL, got " + strconv.Quote(c.API.BaseURL))
	}

	durations := []struct{ field, value string }{
		{"server.shutdownTimeout", c.Server.ShutdownTimeout},
		{"api.timeout", c.API.Timeout},
		{"session.searchDebounce", c.Session.SearchDebounce},
		{"session.idleTimeout", c.Session.IdleTimeout},
		{"session.autosave", c.Session.Autosave},
	}
	for _, d := range durations {
		if v, err := time.ParseDuration(d.value); err != nil || v < 0 {
			return errors.New("J040").
				WithDetail(d.field + " must be a duration such as \"30s\", got " + strconv.Quote(d.value))
		}
	}

	if c.Session.PageSize < 1 {
		return errors.New("J040").WithDetail("session.pageSize must be positive")
	}

	switch c.Export.Driver {
	case DriverMemory, DriverDisk:
	case DriverS3:
		if c.Export.Bucket == "" {
			return errors.New("J041").
				WithSuggestion("Set export.bucket or use the memory driver")
		}
	default:
		return errors.New("J040").
			WithDetail("export.driver must be memory, disk or s3, got " + strconv.Quote(c.Export.Driver))
	}

	if _, ok := parseLevel(c.Log.Level); !ok {
		return errors.New("J040").
			WithDetail("log.level must be debug, info, warn or error, got " + strconv.Quote(c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return errors.New("J040").
			WithDetail("log.format must be text or json, got " + strconv.Quote(c.Log.Format))
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ShutdownTimeout returns server.shutdownTimeout as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 10*time.Second)
}

// APITimeout returns api.timeout as a duration.
func (c *Config) APITimeout() time.Duration {
	return duration(c.API.Timeout, 60*time.Second)
}

// SearchDebounce returns session.searchDebounce as a duration.
func (c *Config) SearchDebounce() time.Duration {
	return duration(c.Session.SearchDebounce, 700*time.Millisecond)
}

// IdleTimeout returns session.idleTimeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return duration(c.Session.IdleTimeout, 30*time.Minute)
}

// AutosaveDelay returns session.autosave as a duration.
func (c *Config) AutosaveDelay() time.Duration {
	return duration(c.Session.Autosave, 2*time.Second)
}

// ExportDir returns the disk driver directory, resolved against the
// config file's directory.
func (c *Config) ExportDir() string {
	if filepath.IsAbs(c.Export.Dir) {
		return c.Export.Dir
	}
	return filepath.Join(c.Dir(), c.Export.Dir)
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
