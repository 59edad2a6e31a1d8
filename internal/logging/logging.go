package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Package-level zap logger. Defaults to a nop logger so library code and
// tests can log without initialization.
var zapLog = zap.NewNop()

// Init builds the process logger at the given level.
func Init(level zapcore.Level) error {
	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(level)

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	encoderConfig.StacktraceKey = ""
	config.EncoderConfig = encoderConfig

	l, err := config.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	zapLog = l
	return nil
}

func Debug(message string, fields ...zap.Field) { zapLog.Debug(message, fields...) }

func Info(message string, fields ...zap.Field) { zapLog.Info(message, fields...) }

func Warn(message string, fields ...zap.Field) { zapLog.Warn(message, fields...) }

func Error(message string, fields ...zap.Field) { zapLog.Error(message, fields...) }

// Sync flushes any buffered log entries.
func Sync() error { return zapLog.Sync() }
