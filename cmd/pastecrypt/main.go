package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pastecrypt/internal/config"
	"pastecrypt/internal/constants"
	"pastecrypt/internal/metrics"
	"pastecrypt/internal/models"
	"pastecrypt/internal/privacy"
	"pastecrypt/internal/security"
	"pastecrypt/internal/tracing"
	"pastecrypt/internal/validation"
	"pastecrypt/pkg/engine"
	"pastecrypt/pkg/worker"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose     = flag.Bool("verbose", false, "Enable verbose logging (includes request ids and payload sizes)")
	configPath  = flag.String("config", "", "Path to configuration file (defaults apply when omitted)")
	version     = flag.Bool("version", false, "Show version information")
	operation   = flag.String("op", "", "Operation to run: encrypt, decrypt, deriveKey")
	inPath      = flag.String("in", "", "Input file (stdin when omitted)")
	outPath     = flag.String("out", "", "Output file (stdout when omitted)")
	keyMaterial = flag.String("key", "", "Base64 key material for direct-key encrypt/decrypt")
	password    = flag.String("password", "", "Password for password-derived encrypt/decrypt or deriveKey")
	saltB64     = flag.String("salt", "", "Base64 salt for deriveKey (fresh salt when omitted)")
	payloadSize = flag.Int64("payload-size", 0, "Prospective ciphertext size in bytes for deriveKey iteration classification")
	asJSON      = flag.Bool("json", false, "Emit the result as JSON")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("pastecrypt %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	// Results go to stdout; everything else stays on stderr.
	logger.SetOutput(os.Stderr)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupLogLevel(logger, cfg, *verbose)

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Debug("Starting pastecrypt")

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    "pastecrypt",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	eng := engine.New(engine.WithChunkSize(cfg.Codec.ChunkSizeKB * 1024))
	w := worker.New(logger,
		worker.WithEngine(eng),
		worker.WithQueueSize(cfg.Worker.QueueSize),
		worker.WithEventBufferSize(cfg.Worker.EventBufferSize),
		worker.WithShutdownTimeout(time.Duration(cfg.Worker.ShutdownTimeoutSec)*time.Second),
	)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	defer func() {
		if err := w.Stop(); err != nil {
			logger.Warnf("Worker shutdown: %v", err)
		}
	}()

	client := worker.NewClient(w)

	result, err := runOperation(ctx, client, logger, opParams{
		op:          *operation,
		inPath:      *inPath,
		key:         *keyMaterial,
		password:    *password,
		salt:        *saltB64,
		payloadSize: *payloadSize,
		asJSON:      *asJSON,
	})
	if err != nil {
		return err
	}

	if err := writeOutput(*outPath, result); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		snapshot := metrics.GetAllMetrics()
		logger.WithFields(logrus.Fields{
			"counters":  snapshot.Counters,
			"timers":    snapshot.Timers,
			"uptime_ms": snapshot.UptimeMs,
		}).Debug("Operation metrics")
	}

	return nil
}

// loadConfig reads the configuration file, or falls back to built-in defaults
// when no path is given.
func loadConfig(path string) (*models.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

// setupLogLevel applies the configured level. Debug and below require the
// verbose flag: config alone cannot switch on logging of request ids and
// sizes.
func setupLogLevel(logger *logrus.Logger, cfg *models.Config, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - request ids and payload sizes will be logged")
		return
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// opParams carries one CLI invocation's operation arguments.
type opParams struct {
	op          string
	inPath      string
	key         string
	password    string
	salt        string
	payloadSize int64
	asJSON      bool
}

// encryptResult is the JSON shape of an encrypt run. The passwordDerived
// flag travels out of band of the envelope, so the caller must persist it
// alongside the envelope text; emitting it here keeps that from being
// forgotten.
type encryptResult struct {
	Envelope        string `json:"envelope"`
	PasswordDerived bool   `json:"isPasswordDerived"`
}

func runOperation(ctx context.Context, client *worker.Client, logger *logrus.Logger, p opParams) (string, error) {
	progress := worker.WithProgress(func(ev worker.Progress) {
		logger.WithFields(logrus.Fields{
			"operation":  ev.Operation,
			"request_id": privacy.MaskRequestID(ev.RequestID),
			"processed":  ev.Processed,
			"total":      ev.Total,
		}).Debug("Operation progress")
	})

	switch p.op {
	case "deriveKey":
		if err := validation.ValidatePayloadSize(p.payloadSize); err != nil {
			return "", err
		}
		derived, err := client.DeriveKey(ctx, p.password, p.salt, p.payloadSize, progress)
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(derived)
		if err != nil {
			return "", err
		}
		return string(out), nil

	case "encrypt":
		plaintext, err := readInput(p.inPath)
		if err != nil {
			return "", err
		}

		key, salt := p.key, ""
		passwordDerived := p.password != ""
		if passwordDerived {
			size := int64(len(plaintext) + engine.Overhead)
			derived, err := client.DeriveKey(ctx, p.password, "", size, progress)
			if err != nil {
				return "", err
			}
			key, salt = derived.Key, derived.Salt
		} else if key == "" {
			return "", fmt.Errorf("encrypt requires -key or -password")
		}

		sealed, err := client.Encrypt(ctx, plaintext, key, passwordDerived, salt, progress)
		if err != nil {
			return "", err
		}
		if p.asJSON {
			out, err := json.Marshal(encryptResult{Envelope: sealed, PasswordDerived: passwordDerived})
			if err != nil {
				return "", err
			}
			return string(out), nil
		}
		return sealed, nil

	case "decrypt":
		envelopeText, err := readInput(p.inPath)
		if err != nil {
			return "", err
		}

		secret, passwordProtected := p.key, false
		if p.password != "" {
			secret, passwordProtected = p.password, true
		} else if secret == "" {
			return "", fmt.Errorf("decrypt requires -key or -password")
		}

		plaintext, err := client.Decrypt(ctx, strings.TrimSpace(envelopeText), secret, passwordProtected, progress)
		if err != nil {
			return "", err
		}
		if p.asJSON {
			out, err := json.Marshal(map[string]string{"plaintext": plaintext})
			if err != nil {
				return "", err
			}
			return string(out), nil
		}
		return plaintext, nil

	case "":
		return "", fmt.Errorf("-op is required (encrypt, decrypt, or deriveKey)")
	default:
		return "", fmt.Errorf("unknown operation %q (expected encrypt, decrypt, or deriveKey)", p.op)
	}
}

func readInput(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}

	if err := security.ValidateFilePath(path); err != nil {
		return "", fmt.Errorf("invalid input path: %w", err)
	}
	data, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func writeOutput(path, result string) error {
	if path == "" {
		_, err := fmt.Println(result)
		return err
	}

	if err := security.ValidateFilePath(path); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	return os.WriteFile(path, []byte(result), constants.DefaultFilePermissions)
}
