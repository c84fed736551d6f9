package models

// Config holds the application configuration
type Config struct {
	LogLevel string        `json:"log_level"`
	Worker   WorkerConfig  `json:"worker"`
	Codec    CodecConfig   `json:"codec"`
	Tracing  TracingConfig `json:"tracing"`
}

// WorkerConfig holds worker queue and shutdown configuration
type WorkerConfig struct {
	QueueSize          int `json:"queue_size"`
	EventBufferSize    int `json:"event_buffer_size"`
	ShutdownTimeoutSec int `json:"shutdown_timeout_sec"`
}

// CodecConfig holds chunked-processing configuration. Chunking affects only
// progress granularity, never results, so it is safe to tune per deployment.
type CodecConfig struct {
	ChunkSizeKB int `json:"chunk_size_kb"`
}

// TracingConfig holds OpenTelemetry exporter configuration
type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	UseStdout    bool    `json:"use_stdout"`
	OTLPEndpoint string  `json:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate"`
	Environment  string  `json:"environment"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
