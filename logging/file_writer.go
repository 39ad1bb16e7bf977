package logging

import (
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileWriterConfig controls rotation of the service log file.
// Zero values fall back to the defaults.
type FileWriterConfig struct {
	// MaxSizeMB rotates the file once it exceeds this size (default: 100)
	MaxSizeMB int

	// MaxBackups is how many rotated files to keep (default: 5)
	MaxBackups int

	// MaxAgeDays is how long to keep rotated files (default: 30)
	MaxAgeDays int

	// Compress gzips rotated files
	Compress bool

	// LocalTime names rotated files in local time rather than UTC
	LocalTime bool
}

// DefaultFileWriterConfig returns the rotation settings the service runs
// with unless overridden.
func DefaultFileWriterConfig() FileWriterConfig {
	return FileWriterConfig{
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

// NewFileWriter returns a rotating log sink at path with default settings.
func NewFileWriter(path string) zapcore.WriteSyncer {
	return NewFileWriterWithConfig(path, DefaultFileWriterConfig())
}

// NewFileWriterWithConfig returns a rotating log sink at path. A long-running
// generation service writes a steady stream of request and provider logs, so
// the file is size-capped and aged out rather than left to grow.
func NewFileWriterWithConfig(path string, config FileWriterConfig) zapcore.WriteSyncer {
	defaults := DefaultFileWriterConfig()
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = defaults.MaxSizeMB
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = defaults.MaxBackups
	}
	if config.MaxAgeDays <= 0 {
		config.MaxAgeDays = defaults.MaxAgeDays
	}

	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    config.MaxSizeMB,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAgeDays,
		Compress:   config.Compress,
		LocalTime:  config.LocalTime,
	})
}
