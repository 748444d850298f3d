package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables recognised by the loader.
const (
	EnvConfigFile  = "RELAY_CONFIG"
	EnvHost        = "HOST"
	EnvPort        = "PORT"
	EnvAPIID       = "VECTORIZER_API_ID"
	EnvAPISecret   = "VECTORIZER_API_SECRET"
	EnvAPIURL      = "VECTORIZER_API_URL"
	EnvTimeout     = "VECTORIZER_TIMEOUT"
	EnvMaxUpload   = "MAX_UPLOAD_BYTES"
	EnvLogLevel    = "LOG_LEVEL"
	EnvLogDir      = "LOG_DIR"
	EnvLogFile     = "LOG_FILE"
	EnvStaticDir   = "STATIC_DIR"
	EnvMetricsOn   = "METRICS_ENABLED"
	EnvMetricsName = "METRICS_NAMESPACE"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Loader builds a Config from defaults, an optional YAML file, a .env file and
// the process environment, in that order of increasing precedence.
type Loader struct {
	useDotEnv bool
	dotEnv    []string
	file      string
	lookup    LookupFunc
}

// NewLoader creates a loader that reads the process environment.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookup:    os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from .env files before reading config.
func (l *Loader) WithDotEnv(enabled bool, files ...string) *Loader {
	l.useDotEnv = enabled
	l.dotEnv = files
	return l
}

// WithFile sets the YAML config file. It overrides RELAY_CONFIG.
func (l *Loader) WithFile(path string) *Loader {
	l.file = path
	return l
}

// WithLookup overrides the environment lookup (useful for tests).
func (l *Loader) WithLookup(lookup LookupFunc) *Loader {
	if lookup != nil {
		l.lookup = lookup
	}
	return l
}

// Result captures the loaded configuration and where it came from.
type Result struct {
	Config *Config
	Path   string
}

// Load builds and validates the configuration.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		// .env 不存在时忽略，使用系统环境变量
		_ = godotenv.Load(l.dotEnv...)
	}

	cfg := DefaultConfig()
	source := "defaults+env"

	path := l.file
	if path == "" {
		path, _ = l.lookup(EnvConfigFile)
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
		source = path + "+env"
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return &Result{Config: cfg, Path: source}, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v, ok := l.lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	setString(EnvHost, &cfg.Server.IP)
	setString(EnvAPIID, &cfg.Upstream.APIID)
	setString(EnvAPISecret, &cfg.Upstream.APISecret)
	setString(EnvAPIURL, &cfg.Upstream.Endpoint)
	setString(EnvLogLevel, &cfg.Log.Level)
	setString(EnvLogDir, &cfg.Log.Dir)
	setString(EnvLogFile, &cfg.Log.File)
	setString(EnvStaticDir, &cfg.Web.StaticDir)
	setString(EnvMetricsName, &cfg.Metrics.Namespace)

	if v, ok := l.lookup(EnvPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := l.lookup(EnvTimeout); ok && strings.TrimSpace(v) != "" {
		timeout, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvTimeout, v, err)
		}
		cfg.Upstream.Timeout = timeout
	}
	if v, ok := l.lookup(EnvMaxUpload); ok && strings.TrimSpace(v) != "" {
		size, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMaxUpload, v, err)
		}
		cfg.Upload.MaxBytes = size
	}
	if v, ok := l.lookup(EnvMetricsOn); ok && strings.TrimSpace(v) != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvMetricsOn, v, err)
		}
		cfg.Metrics.Enabled = enabled
	}
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", cfg.Server.Port)
	}
	if cfg.Upstream.Endpoint == "" {
		return fmt.Errorf("upstream endpoint is required")
	}
	if cfg.Upstream.APIID == "" || cfg.Upstream.APISecret == "" {
		return fmt.Errorf("upstream credentials are required")
	}
	if cfg.Upstream.Timeout < 0 {
		return fmt.Errorf("upstream timeout must not be negative")
	}
	if cfg.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload limit must be positive: %d", cfg.Upload.MaxBytes)
	}
	return nil
}
