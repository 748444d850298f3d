package config

import "time"

const (
	// DevAPIID and DevAPISecret are local development placeholders only.
	// Production deployments must override both.
	DevAPIID     = "dev-api-id"
	DevAPISecret = "dev-api-secret"

	DefaultEndpoint = "https://api.vectorizer.ai/api/v1/vectorize"
	DefaultPort     = 3001
	// DefaultMaxUploadBytes 最大上传大小 10MiB
	DefaultMaxUploadBytes = 10 * 1024 * 1024
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            DefaultPort,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "INFO",
		},
		Upstream: UpstreamConfig{
			Endpoint:  DefaultEndpoint,
			APIID:     DevAPIID,
			APISecret: DevAPISecret,
			Timeout:   120 * time.Second,
		},
		Upload: UploadConfig{
			MaxBytes: DefaultMaxUploadBytes,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "vectorize_relay",
		},
	}
}
