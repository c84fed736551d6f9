package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"pastecrypt/internal/constants"
	"pastecrypt/internal/models"
	"pastecrypt/internal/security"
)

var (
	ErrInvalidLogLevel  = models.ConfigError{Message: "invalid log level"}
	ErrInvalidChunkSize = models.ConfigError{Message: "codec chunk size must be a positive multiple of 3 KB"}
)

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
	"fatal": true,
	"panic": true,
}

// Default returns the configuration used when no config file is supplied.
func Default() *models.Config {
	c := &models.Config{}
	applyDefaults(c)
	return c
}

// LoadConfig reads and validates a JSON configuration file, then applies
// environment overrides.
func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	// Perform security validation after environment overrides
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(c *models.Config) {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = constants.DefaultWorkerQueueSize
	}
	if c.Worker.EventBufferSize <= 0 {
		c.Worker.EventBufferSize = constants.DefaultEventBufferSize
	}
	if c.Worker.ShutdownTimeoutSec <= 0 {
		c.Worker.ShutdownTimeoutSec = constants.DefaultShutdownTimeoutSec
	}
	if c.Codec.ChunkSizeKB <= 0 {
		c.Codec.ChunkSizeKB = constants.DefaultCodecChunkSize / 1024
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 0.1
	}
	if c.Tracing.Environment == "" {
		c.Tracing.Environment = "development"
	}
}

func validate(c *models.Config) error {
	applyDefaults(c)

	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	// Encode chunks must align to 3 bytes and decode chunks to 4 characters;
	// a KB count divisible by 3 satisfies both once scaled by 1024.
	if c.Codec.ChunkSizeKB%3 != 0 {
		return ErrInvalidChunkSize
	}

	if c.Tracing.SampleRate > 1 {
		return models.ConfigError{Message: fmt.Sprintf("tracing sample rate %v out of range (0, 1]", c.Tracing.SampleRate)}
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if level := os.Getenv("PASTECRYPT_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if size := os.Getenv("PASTECRYPT_WORKER_QUEUE_SIZE"); size != "" {
		if n, err := strconv.Atoi(size); err == nil && n > 0 {
			c.Worker.QueueSize = n
		}
	}
	if kb := os.Getenv("PASTECRYPT_CODEC_CHUNK_KB"); kb != "" {
		if n, err := strconv.Atoi(kb); err == nil && n > 0 && n%3 == 0 {
			c.Codec.ChunkSizeKB = n
		}
	}
	if enabled := os.Getenv("PASTECRYPT_TRACING_ENABLED"); enabled != "" {
		c.Tracing.Enabled = enabled == "true" || enabled == "1"
	}
	if endpoint := os.Getenv("PASTECRYPT_OTLP_ENDPOINT"); endpoint != "" {
		c.Tracing.OTLPEndpoint = endpoint
		c.Tracing.UseStdout = false
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("PASTECRYPT_ENV") == "production"

	if isProduction {
		// Debug logging records payload sizes, request ids, and envelope
		// excerpts; keep it out of production logs.
		if c.LogLevel == "debug" || c.LogLevel == "trace" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}

		if c.Tracing.Enabled && c.Tracing.UseStdout {
			return models.ConfigError{Message: "stdout trace exporter should not be used in production"}
		}
	}

	return nil
}
