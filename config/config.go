package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/opd-ai/delivery"
	"github.com/opd-ai/delivery/limits"
	"github.com/sirupsen/logrus"
)

// Validation constants for configuration bounds checking.
const (
	// MinHandshakeTimeout is the minimum allowed handshake timeout.
	MinHandshakeTimeout = 100 * time.Millisecond
	// MaxHandshakeTimeout is the maximum allowed handshake timeout (10 minutes).
	MaxHandshakeTimeout = 10 * time.Minute
	// MinAckTimeout is the minimum allowed acknowledgment timeout.
	MinAckTimeout = 100 * time.Millisecond
	// MaxAckTimeout is the maximum allowed acknowledgment timeout (1 hour).
	MaxAckTimeout = time.Hour
	// MinReceiveRetention is the minimum receive retention.
	MinReceiveRetention = 0
	// MaxReceiveRetention is the maximum receive retention.
	MaxReceiveRetention = 10000
)

// Log formats accepted by LogFormat.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// ErrInvalidConfig indicates a configuration value outside its bounds.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the settings shared by the delivery server and client.
type Config struct {
	// ListenAddr is the address the server listens on.
	ListenAddr string
	// Path is the HTTP route upgraded to the delivery WebSocket.
	Path string
	// ServerURL is the default WebSocket URL for the client.
	ServerURL string
	// MaxFileSize bounds each file sent or accepted, in bytes.
	MaxFileSize int64
	// ReceiveRetention is the number of received packets kept per session.
	ReceiveRetention int
	// OutputDir is where the server saves received files.
	OutputDir string
	// HandshakeTimeout bounds the client's wait for delivery.connect.
	HandshakeTimeout time.Duration
	// AckTimeout bounds the client's wait for all acknowledgments.
	AckTimeout time.Duration
	// LogLevel is a logrus level name.
	LogLevel string
	// LogFormat is "text" or "json".
	LogFormat string
}

// fileConfig is the on-disk TOML form. Durations are strings such as "5s".
type fileConfig struct {
	ListenAddr       string `toml:"listen_addr"`
	Path             string `toml:"path"`
	ServerURL        string `toml:"server_url"`
	MaxFileSize      int64  `toml:"max_file_size"`
	ReceiveRetention int    `toml:"receive_retention"`
	OutputDir        string `toml:"output_dir"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	AckTimeout       string `toml:"ack_timeout"`
	LogLevel         string `toml:"log_level"`
	LogFormat        string `toml:"log_format"`
}

// Default returns the built-in configuration.
//
// Default Value Rationale:
//   - MaxFileSize: limits.DefaultMaxFileSize - whole files are buffered in memory on both ends
//   - ReceiveRetention: 0 - received packets are handed to the host and dropped
//   - HandshakeTimeout: 10s - generous for a single round trip
//   - AckTimeout: 60s - covers encoding and upload of a maximum-size file on slow links
func Default() *Config {
	return &Config{
		ListenAddr:       ":8080",
		Path:             "/delivery",
		ServerURL:        "ws://localhost:8080/delivery",
		MaxFileSize:      limits.DefaultMaxFileSize,
		ReceiveRetention: 0,
		OutputDir:        "received",
		HandshakeTimeout: 10 * time.Second,
		AckTimeout:       60 * time.Second,
		LogLevel:         "info",
		LogFormat:        LogFormatText,
	}
}

// Load builds a configuration from the defaults, the TOML file at path
// (skipped when path is empty) and DELIVERY_* environment overrides, in
// that order, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvironment()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logConfigurationInfo(cfg, path)
	return cfg, nil
}

// LoadFile overlays the keys defined in a TOML file onto c. Keys absent
// from the file leave the current values untouched.
func (c *Config) LoadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "LoadFile",
			"path":     path,
			"keys":     fmt.Sprint(undecoded),
		}).Warn("Ignoring unknown configuration keys")
	}

	if meta.IsDefined("listen_addr") {
		c.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("path") {
		c.Path = strings.TrimSpace(raw.Path)
	}
	if meta.IsDefined("server_url") {
		c.ServerURL = strings.TrimSpace(raw.ServerURL)
	}
	if meta.IsDefined("max_file_size") {
		c.MaxFileSize = raw.MaxFileSize
	}
	if meta.IsDefined("receive_retention") {
		c.ReceiveRetention = raw.ReceiveRetention
	}
	if meta.IsDefined("output_dir") {
		c.OutputDir = strings.TrimSpace(raw.OutputDir)
	}
	if meta.IsDefined("handshake_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.HandshakeTimeout))
		if err != nil {
			return fmt.Errorf("parse handshake_timeout: %w", err)
		}
		c.HandshakeTimeout = d
	}
	if meta.IsDefined("ack_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.AckTimeout))
		if err != nil {
			return fmt.Errorf("parse ack_timeout: %w", err)
		}
		c.AckTimeout = d
	}
	if meta.IsDefined("log_level") {
		c.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		c.LogFormat = strings.TrimSpace(raw.LogFormat)
	}

	return nil
}

// Validate checks every field against its bounds.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%w: listen address is empty", ErrInvalidConfig)
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("%w: path %q must start with /", ErrInvalidConfig, c.Path)
	}
	if err := limits.ValidateLimit(c.MaxFileSize); err != nil {
		return fmt.Errorf("%w: max file size: %v", ErrInvalidConfig, err)
	}
	if c.ReceiveRetention < MinReceiveRetention || c.ReceiveRetention > MaxReceiveRetention {
		return fmt.Errorf("%w: receive retention %d not in [%d, %d]",
			ErrInvalidConfig, c.ReceiveRetention, MinReceiveRetention, MaxReceiveRetention)
	}
	if c.HandshakeTimeout < MinHandshakeTimeout || c.HandshakeTimeout > MaxHandshakeTimeout {
		return fmt.Errorf("%w: handshake timeout %s not in [%s, %s]",
			ErrInvalidConfig, c.HandshakeTimeout, MinHandshakeTimeout, MaxHandshakeTimeout)
	}
	if c.AckTimeout < MinAckTimeout || c.AckTimeout > MaxAckTimeout {
		return fmt.Errorf("%w: ack timeout %s not in [%s, %s]",
			ErrInvalidConfig, c.AckTimeout, MinAckTimeout, MaxAckTimeout)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

// SessionOptions returns the session options derived from c.
func (c *Config) SessionOptions() []delivery.Option {
	return []delivery.Option{
		delivery.WithMaxFileSize(c.MaxFileSize),
		delivery.WithReceiveRetention(c.ReceiveRetention),
	}
}

// ConfigureLogging applies LogLevel and LogFormat to logger.
func (c *Config) ConfigureLogging(logger *logrus.Logger) error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	logger.SetLevel(level)

	switch c.LogFormat {
	case LogFormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// ApplyEnvironment updates c from DELIVERY_* environment variables. Values
// that fail to parse or fall outside their bounds are logged and ignored.
func (c *Config) ApplyEnvironment() {
	parseStringSetting("DELIVERY_LISTEN_ADDR", &c.ListenAddr)
	parseStringSetting("DELIVERY_PATH", &c.Path)
	parseStringSetting("DELIVERY_SERVER_URL", &c.ServerURL)
	parseStringSetting("DELIVERY_OUTPUT_DIR", &c.OutputDir)
	parseMaxFileSizeSetting(c)
	parseRetentionSetting(c)
	parseDurationSetting("DELIVERY_HANDSHAKE_TIMEOUT", &c.HandshakeTimeout, MinHandshakeTimeout, MaxHandshakeTimeout)
	parseDurationSetting("DELIVERY_ACK_TIMEOUT", &c.AckTimeout, MinAckTimeout, MaxAckTimeout)
	parseLogLevelSetting(c)
	parseLogFormatSetting(c)
}

func parseStringSetting(envVar string, target *string) {
	if value := strings.TrimSpace(os.Getenv(envVar)); value != "" {
		*target = value
	}
}

// parseMaxFileSizeSetting updates MaxFileSize from DELIVERY_MAX_FILE_SIZE.
// It validates the value against the limits package bounds.
func parseMaxFileSizeSetting(c *Config) {
	sizeStr := os.Getenv("DELIVERY_MAX_FILE_SIZE")
	if sizeStr == "" {
		return
	}

	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseMaxFileSizeSetting",
			"env_var":     "DELIVERY_MAX_FILE_SIZE",
			"value":       sizeStr,
			"error":       err.Error(),
			"using_value": c.MaxFileSize,
		}).Warn("Failed to parse DELIVERY_MAX_FILE_SIZE environment variable, using default")
		return
	}
	if err := limits.ValidateLimit(size); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseMaxFileSizeSetting",
			"env_var":     "DELIVERY_MAX_FILE_SIZE",
			"value":       size,
			"min":         limits.MinFileSize,
			"max":         limits.MaxFileSize,
			"using_value": c.MaxFileSize,
		}).Warn("DELIVERY_MAX_FILE_SIZE value out of bounds, using default")
		return
	}
	c.MaxFileSize = size
}

// parseRetentionSetting updates ReceiveRetention from DELIVERY_RECEIVE_RETENTION.
func parseRetentionSetting(c *Config) {
	retentionStr := os.Getenv("DELIVERY_RECEIVE_RETENTION")
	if retentionStr == "" {
		return
	}

	retention, err := strconv.Atoi(retentionStr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseRetentionSetting",
			"env_var":     "DELIVERY_RECEIVE_RETENTION",
			"value":       retentionStr,
			"error":       err.Error(),
			"using_value": c.ReceiveRetention,
		}).Warn("Failed to parse DELIVERY_RECEIVE_RETENTION environment variable, using default")
		return
	}
	if retention < MinReceiveRetention || retention > MaxReceiveRetention {
		logrus.WithFields(logrus.Fields{
			"function":    "parseRetentionSetting",
			"env_var":     "DELIVERY_RECEIVE_RETENTION",
			"value":       retention,
			"min":         MinReceiveRetention,
			"max":         MaxReceiveRetention,
			"using_value": c.ReceiveRetention,
		}).Warn("DELIVERY_RECEIVE_RETENTION value out of bounds, using default")
		return
	}
	c.ReceiveRetention = retention
}

// parseDurationSetting accepts Go duration strings ("5s") or plain integer
// milliseconds.
func parseDurationSetting(envVar string, target *time.Duration, lower, upper time.Duration) {
	durationStr := strings.TrimSpace(os.Getenv(envVar))
	if durationStr == "" {
		return
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		ms, intErr := strconv.Atoi(durationStr)
		if intErr != nil {
			logrus.WithFields(logrus.Fields{
				"function":    "parseDurationSetting",
				"env_var":     envVar,
				"value":       durationStr,
				"error":       err.Error(),
				"using_value": target.String(),
			}).Warn("Failed to parse duration environment variable, using default")
			return
		}
		d = time.Duration(ms) * time.Millisecond
	}

	if d < lower || d > upper {
		logrus.WithFields(logrus.Fields{
			"function":    "parseDurationSetting",
			"env_var":     envVar,
			"value":       d.String(),
			"min":         lower.String(),
			"max":         upper.String(),
			"using_value": target.String(),
		}).Warn("Duration environment variable out of bounds, using default")
		return
	}
	*target = d
}

func parseLogLevelSetting(c *Config) {
	levelStr := strings.TrimSpace(os.Getenv("DELIVERY_LOG_LEVEL"))
	if levelStr == "" {
		return
	}
	if _, err := logrus.ParseLevel(levelStr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseLogLevelSetting",
			"env_var":     "DELIVERY_LOG_LEVEL",
			"value":       levelStr,
			"error":       err.Error(),
			"using_value": c.LogLevel,
		}).Warn("Failed to parse DELIVERY_LOG_LEVEL environment variable, using default")
		return
	}
	c.LogLevel = levelStr
}

func parseLogFormatSetting(c *Config) {
	format := strings.ToLower(strings.TrimSpace(os.Getenv("DELIVERY_LOG_FORMAT")))
	if format == "" {
		return
	}
	if format != LogFormatText && format != LogFormatJSON {
		logrus.WithFields(logrus.Fields{
			"function":    "parseLogFormatSetting",
			"env_var":     "DELIVERY_LOG_FORMAT",
			"value":       format,
			"using_value": c.LogFormat,
		}).Warn("Unknown DELIVERY_LOG_FORMAT, using default")
		return
	}
	c.LogFormat = format
}

// logConfigurationInfo logs the final configuration settings.
func logConfigurationInfo(c *Config, path string) {
	logrus.WithFields(logrus.Fields{
		"function":          "Load",
		"config_file":       path,
		"listen_addr":       c.ListenAddr,
		"path":              c.Path,
		"server_url":        c.ServerURL,
		"max_file_size":     c.MaxFileSize,
		"receive_retention": c.ReceiveRetention,
		"output_dir":        c.OutputDir,
		"handshake_timeout": c.HandshakeTimeout.String(),
		"ack_timeout":       c.AckTimeout.String(),
		"log_level":         c.LogLevel,
		"log_format":        c.LogFormat,
	}).Debug("Loaded delivery configuration")
}
