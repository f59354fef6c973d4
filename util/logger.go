package util

import (
	"log"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// parseLogLevel accepts either zap's numeric levels ("-1", "0") or names ("debug", "warn").
func parseLogLevel(raw string) zapcore.Level {
	if n, err := strconv.Atoi(raw); err == nil {
		return zapcore.Level(n)
	}
	if lvl, err := zapcore.ParseLevel(raw); err == nil {
		return lvl
	}
	return zapcore.InfoLevel
}

func initLogger(level zapcore.Level) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.CallerKey = "ln"
	zapCfg.EncoderConfig.FunctionKey = ""
	zapCfg.EncoderConfig.LevelKey = "severity"
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = []string{"stdout"}

	return zapCfg.Build()
}

// NewLogger builds the process logger from LOG_LEVEL and installs it as the zap global.
func NewLogger() (*zap.Logger, func()) {
	return NewLoggerWithLevel(os.Getenv("LOG_LEVEL"))
}

// NewLoggerWithLevel is NewLogger with an explicit level; an empty level means info.
func NewLoggerWithLevel(level string) (*zap.Logger, func()) {
	logger, err := initLogger(parseLogLevel(level))
	if err != nil {
		log.Fatalf("fail to init logger, error: %v", err)
	}

	undo := zap.ReplaceGlobals(logger)

	return logger, func() {
		undo()
		_ = logger.Sync()
	}
}
