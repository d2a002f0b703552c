// Package logger builds the zap logger and the structured fields shared across packages.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls how log entries are written.
type Options struct {
	JSON  bool
	Debug bool
	// Output defaults to stderr so command results printed to stdout stay clean.
	Output string
}

func New(opts Options) (*zap.Logger, error) {
	return config(opts).Build()
}

func config(opts Options) zap.Config {
	level := zapcore.InfoLevel
	encoding := "console"

	if opts.JSON {
		encoding = "json"
	}

	if opts.Debug {
		level = zapcore.DebugLevel
	}

	output := opts.Output
	if output == "" {
		output = "stderr"
	}

	return zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(level),
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "step",

			LevelKey:    "level",
			EncodeLevel: zapcore.LowercaseLevelEncoder,

			TimeKey:    "time",
			EncodeTime: zapcore.RFC3339TimeEncoder,

			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
	}
}
