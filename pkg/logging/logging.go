// Package logging provides the engine's Logger implementations. The
// interface is kept intentionally small, in the style of the orchestrator
// package this module descends from, so that callers throughout the
// engine can depend on an interface instead of a concrete logging
// library.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the package-facing logging abstraction. Every component in
// this module accepts a Logger rather than importing zap directly.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NoOpLogger discards everything. Useful for tests.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...interface{}) {}
func (NoOpLogger) Info(string, ...interface{})  {}
func (NoOpLogger) Warn(string, ...interface{})  {}
func (NoOpLogger) Error(string, ...interface{}) {}

// ZapLogger adapts *zap.SugaredLogger to the Logger interface.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// Options configures the on-disk sink used by New.
type Options struct {
	Debug      bool
	FilePath   string // empty disables the file sink
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds a ZapLogger. When opts.FilePath is set, log lines are also
// written to a rotating file via lumberjack, mirroring the rotation
// policy several of the engine's sibling services use in production.
func New(opts Options) (*ZapLogger, error) {
	var cfg zap.Config
	if opts.Debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	if opts.FilePath == "" {
		core, err := cfg.Build()
		if err != nil {
			return nil, err
		}
		return &ZapLogger{s: core.Sugar()}, nil
	}

	encoder := zapcore.NewJSONEncoder(cfg.EncoderConfig)
	sink := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    nonZero(opts.MaxSizeMB, 50),
		MaxBackups: nonZero(opts.MaxBackups, 5),
		MaxAge:     nonZero(opts.MaxAgeDays, 14),
		Compress:   true,
	}

	tee := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), cfg.Level),
		zapcore.NewCore(encoder, zapcore.AddSync(sink), cfg.Level),
	)

	core := zap.New(tee, zap.AddCaller())
	return &ZapLogger{s: core.Sugar()}, nil
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (z *ZapLogger) Debug(msg string, kv ...interface{}) { z.s.Debugw(msg, kv...) }
func (z *ZapLogger) Info(msg string, kv ...interface{})  { z.s.Infow(msg, kv...) }
func (z *ZapLogger) Warn(msg string, kv ...interface{})  { z.s.Warnw(msg, kv...) }
func (z *ZapLogger) Error(msg string, kv ...interface{}) { z.s.Errorw(msg, kv...) }

// Sync flushes any buffered log entries. Call before process exit.
func (z *ZapLogger) Sync() error {
	return z.s.Sync()
}
