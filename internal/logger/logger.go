// Package logger builds the zap loggers used by shardplan.
package logger

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log encoding and minimum level.
type Config struct {
	// Format is console, json or auto (console)
	Format string `json:"format" yaml:"format"`

	// Level is a zap level name: debug, info, warn, error
	Level string `json:"level" yaml:"level"`
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{
		Format: "auto",
		Level:  "info",
	}
}

// Validate checks that the format and level are known.
func (c Config) Validate() error {
	switch strings.ToLower(c.Format) {
	case "", "auto", "console", "logfmt", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	if _, err := zapcore.ParseLevel(levelOrDefault(c.Level)); err != nil {
		return err
	}
	return nil
}

// New creates a logger writing to w.
func New(w io.Writer, c Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(levelOrDefault(c.Level))
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(c.Format) {
	case "json":
		encoder = zapcore.NewJSONEncoder(config)
	case "", "auto", "console", "logfmt":
		encoder = zapcore.NewConsoleEncoder(config)
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}

	return zap.New(zapcore.NewCore(
		encoder,
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)), nil
}

// OrNop returns log, or a no-op logger when log is nil.
func OrNop(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}

func levelOrDefault(level string) string {
	if level == "" {
		return "info"
	}
	return level
}
