package logger

import (
	"fmt"
	"os"
	"strings"

	"firewatch/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides leveled printf-style logging to stdout and, when configured,
// an append-only log file.
type Logger struct {
	sugar   *zap.SugaredLogger
	logFile string
}

// NewLogger builds a Logger from the log settings in config.
func NewLogger(cfg *config.Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.LogFormat == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.LogFile, err)
		}
		// The file always gets JSON so it can be tailed by tooling.
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level))
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		base = base.With(zap.String("hostname", hostname))
	}

	return &Logger{sugar: base.Sugar(), logFile: cfg.LogFile}, nil
}

// NewNop returns a Logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// New wraps an existing zap logger.
func New(base *zap.Logger) *Logger {
	return &Logger{sugar: base.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// Debug writes a formatted debug-level log entry.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// With returns a child logger that attaches the given key/value pairs to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...), logFile: l.logFile}
}

// LogFile returns the path of the log file, or "" when logging only to stdout.
func (l *Logger) LogFile() string {
	return l.logFile
}

// Sync flushes buffered entries.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

// CleanLogs truncates the log file.
func (l *Logger) CleanLogs() error {
	if l.logFile == "" {
		return nil
	}
	if err := os.Truncate(l.logFile, 0); err != nil {
		l.Error("Error truncating log file %s: %v", l.logFile, err)
		return err
	}
	l.Info("Log file %s has been cleared", l.logFile)
	return nil
}
