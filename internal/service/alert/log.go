package alert

import (
	"context"

	"firewatch/internal/logger"
)

// Log writes alerts to the application log. It is the fallback when no
// remote notifier is configured.
type Log struct {
	logger *logger.Logger
}

func NewLog(logger *logger.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Send(_ context.Context, title, body string) error {
	l.logger.Warning("🚨 %s\n%s", title, body)
	return nil
}
