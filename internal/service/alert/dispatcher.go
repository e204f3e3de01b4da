package alert

import (
	"context"
	"errors"
	"fmt"

	"firewatch/internal/logger"
	"firewatch/internal/model"
)

// Notifier delivers a titled message to one channel.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, title, body string) error

func (f NotifierFunc) Send(ctx context.Context, title, body string) error {
	return f(ctx, title, body)
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, title, body); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

// Dispatcher sends alert events. Delivery is fire and forget: failures are
// logged and never retried.
type Dispatcher struct {
	notifier Notifier
	logger   *logger.Logger
}

func NewDispatcher(notifier Notifier, logger *logger.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, logger: logger}
}

// Dispatch reports whether the notifier accepted the event.
func (d *Dispatcher) Dispatch(ctx context.Context, event *model.AlertEvent) bool {
	if err := d.notifier.Send(ctx, event.Title, event.Message); err != nil {
		d.logger.Error("❌ Failed to send alert %s: %v", event.ID, err)
		return false
	}
	d.logger.Info("📨 Alert %s sent", event.ID)
	return true
}
