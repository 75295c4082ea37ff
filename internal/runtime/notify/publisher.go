// Package notify raises named notifications when observed traffic crosses a
// configured boundary, and delivers them through a Publisher.
//
// Publishing is best-effort: a failed delivery is logged and counted, never
// surfaced as a failure of the message being processed.
package notify

import (
	"context"
	"errors"
	"fmt"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	loggingpkg "github.com/drblury/flowguard/internal/runtime/logging"
	"github.com/drblury/flowguard/internal/runtime/metadata"
	"github.com/drblury/flowguard/internal/runtime/metrics"
)

// Publisher delivers a named notification with its attributes.
type Publisher interface {
	Publish(ctx context.Context, name string, attributes metadata.Metadata) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, name string, attributes metadata.Metadata) error

func (f PublisherFunc) Publish(ctx context.Context, name string, attributes metadata.Metadata) error {
	return f(ctx, name, attributes)
}

// Emit publishes through p and swallows any failure after logging it.
// It reports whether the notification was delivered.
func Emit(ctx context.Context, p Publisher, name string, attributes metadata.Metadata, logger loggingpkg.ServiceLogger, m *metrics.Metrics) bool {
	log := loggingpkg.OrNop(logger)
	if p == nil {
		log.Error("Notification dropped", errspkg.ErrPublisherRequired, loggingpkg.LogFields{"notification": name})
		m.NotificationFailed(name)
		return false
	}
	if err := p.Publish(ctx, name, attributes.Clone()); err != nil {
		log.Error("Failed to publish notification", err, loggingpkg.LogFields{"notification": name})
		m.NotificationFailed(name)
		return false
	}
	m.NotificationPublished(name)
	return true
}

// Multi fans a notification out to every publisher and joins their errors.
func Multi(publishers ...Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, name string, attributes metadata.Metadata) error {
		var errs []error
		for i, p := range publishers {
			if p == nil {
				continue
			}
			if err := p.Publish(ctx, name, attributes.Clone()); err != nil {
				errs = append(errs, fmt.Errorf("publisher %d: %w", i, err))
			}
		}
		return errors.Join(errs...)
	})
}

// LogPublisher writes notifications to a logger.
type LogPublisher struct {
	logger loggingpkg.ServiceLogger
}

func NewLogPublisher(logger loggingpkg.ServiceLogger) *LogPublisher {
	return &LogPublisher{logger: loggingpkg.OrNop(logger)}
}

func (p *LogPublisher) Publish(_ context.Context, name string, attributes metadata.Metadata) error {
	if name == "" {
		return errspkg.ErrNotificationNameMissing
	}
	fields := make(loggingpkg.LogFields, len(attributes)+1)
	for k, v := range attributes {
		fields[k] = v
	}
	fields["notification"] = name
	p.logger.Info("Notification raised", fields)
	return nil
}
