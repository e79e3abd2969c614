// Package logging builds the process logger and holds field helpers shared by packages.
package logging

import (
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Encoding: "console",
	}
}

// New creates a logger writing to stderr.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	var zcfg zap.Config
	switch cfg.Encoding {
	case "json":
		zcfg = zap.NewProductionConfig()
	case "console", "":
		zcfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown log encoding %q", cfg.Encoding)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.DisableStacktrace = level > zapcore.DebugLevel
	return zcfg.Build()
}

type b64 []byte

func (b b64) String() string {
	return base64.URLEncoding.EncodeToString(b)
}

// Bytes logs opaque keys and party ids in the same url-safe base64 used on the wire.
func Bytes(name string, b []byte) zap.Field {
	return zap.Stringer(name, b64(b))
}
