package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default address the raw stream transport listens on.
	DefaultAddr = ":43127"
	// DefaultWSAddr is the default address the websocket gateway listens on.
	DefaultWSAddr = ":43128"
	// DefaultPingInterval controls the keepalive cadence for websocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound frame size on either transport.
	DefaultMaxPayloadBytes int64 = 1 << 20
	// DefaultMaxClients bounds concurrent connections. Zero disables the limit.
	DefaultMaxClients = 256

	// DefaultCompressionThresholdBytes is the frame size above which the
	// configured compression codec is applied.
	DefaultCompressionThresholdBytes = 1024
	// DefaultCompressionCodec names the compressor used above the threshold.
	DefaultCompressionCodec = "snappy"

	// DefaultAuthFailureWindow bounds how often a session may retry
	// authentication before being throttled.
	DefaultAuthFailureWindow = time.Minute
	// DefaultAuthFailureBurst sets how many failed attempts are allowed per window.
	DefaultAuthFailureBurst = 5

	// DefaultLogLevel controls verbosity for broker logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "brqueue.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the broker process.
type Config struct {
	Address                   string
	WSAddress                 string
	AllowedOrigins            []string
	MaxPayloadBytes           int64
	PingInterval              time.Duration
	MaxClients                int
	Username                  string
	Password                  string
	AdminToken                string
	CompressionThresholdBytes int
	CompressionCodec          string
	AuthFailureWindow         time.Duration
	AuthFailureBurst          int
	Logging                   LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the broker configuration from environment variables, applying
// sane defaults and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:                   getString("BRQUEUE_ADDR", DefaultAddr),
		WSAddress:                 getString("BRQUEUE_WS_ADDR", DefaultWSAddr),
		AllowedOrigins:            parseList(os.Getenv("BRQUEUE_ALLOWED_ORIGINS")),
		MaxPayloadBytes:           DefaultMaxPayloadBytes,
		PingInterval:              DefaultPingInterval,
		MaxClients:                DefaultMaxClients,
		Username:                  strings.TrimSpace(os.Getenv("BRQUEUE_USERNAME")),
		Password:                  os.Getenv("BRQUEUE_PASSWORD"),
		AdminToken:                strings.TrimSpace(os.Getenv("BRQUEUE_ADMIN_TOKEN")),
		CompressionThresholdBytes: DefaultCompressionThresholdBytes,
		CompressionCodec:          strings.TrimSpace(getString("BRQUEUE_COMPRESSION_CODEC", DefaultCompressionCodec)),
		AuthFailureWindow:         DefaultAuthFailureWindow,
		AuthFailureBurst:          DefaultAuthFailureBurst,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("BRQUEUE_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("BRQUEUE_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("BRQUEUE_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("BRQUEUE_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRQUEUE_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("BRQUEUE_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRQUEUE_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("BRQUEUE_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRQUEUE_COMPRESSION_THRESHOLD_BYTES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("BRQUEUE_COMPRESSION_THRESHOLD_BYTES must be a non-negative integer, got %q", raw))
		} else {
			cfg.CompressionThresholdBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRQUEUE_AUTH_FAILURE_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("BRQUEUE_AUTH_FAILURE_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.AuthFailureWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRQUEUE_AUTH_FAILURE_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("BRQUEUE_AUTH_FAILURE_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.AuthFailureBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRQUEUE_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("BRQUEUE_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRQUEUE_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("BRQUEUE_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRQUEUE_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("BRQUEUE_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BRQUEUE_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("BRQUEUE_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if cfg.Username == "" {
		problems = append(problems, "BRQUEUE_USERNAME must be set")
	}
	if cfg.Password == "" {
		problems = append(problems, "BRQUEUE_PASSWORD must be set")
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
