package config

import "time"

// Config is the immutable runtime configuration. It is built once at startup
// and passed explicitly to every component that needs it.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Web      WebConfig      `yaml:"web"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Upload   UploadConfig   `yaml:"upload"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	IP              string        `yaml:"ip"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// WebConfig controls the optional static client bundle.
type WebConfig struct {
	StaticDir string `yaml:"static_dir"`
}

// UpstreamConfig describes the vectorization service and its credentials.
type UpstreamConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	APIID     string        `yaml:"api_id"`
	APISecret string        `yaml:"api_secret"`
	Timeout   time.Duration `yaml:"timeout"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// UsesDevCredentials reports whether the upstream credentials are still the
// local development placeholders.
func (c *Config) UsesDevCredentials() bool {
	return c.Upstream.APIID == DevAPIID || c.Upstream.APISecret == DevAPISecret
}
