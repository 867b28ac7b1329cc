// internal/logger/logger.go
package logger

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// StartLogger installs the global zap logger: a console core for the operator
// and a JSON core written to logDir/<name>.log with rotation.
func StartLogger(logDir, name, level string) error {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return err
	}

	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.SetLevel(zap.InfoLevel)
	}

	consoleConfig := zap.NewDevelopmentConfig()
	consoleConfig.Level = lvl
	consoleLogger, err := consoleConfig.Build()
	if err != nil {
		return err
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(RotatingWriter(filepath.Join(logDir, name+".log"))),
		lvl,
	)

	logger := zap.New(zapcore.NewTee(
		consoleLogger.Core(),
		fileCore,
	), zap.AddCaller())

	zap.ReplaceGlobals(logger)
	return nil
}

// RotatingWriter returns an append-only writer rotated daily, keeping one backup.
func RotatingWriter(filename string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    50, // megabytes
		MaxBackups: 1,
		MaxAge:     1,
		Compress:   false,
		LocalTime:  true,
	}
}
