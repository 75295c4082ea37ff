// Package flowguard hosts message workflows on Watermill and guards them
// with interceptors: a throttle that admits a bounded number of messages per
// time window, rolling windowed statistics, threshold and count notifiers
// with hysteresis, and a tracker for messages that take too long.
//
// It reads the target transport (Kafka, RabbitMQ, AWS SNS/SQS, NATS, HTTP or
// Go Channels) from Config, bootstraps the Watermill router, and registers the
// default middleware chain for correlation IDs, logging, tracing, metrics,
// retries and panic recovery.
//
// A minimal setup fills Config, creates a Service, builds interceptors with
// the Service.New* constructors, attaches them to workflows with
// RegisterWorkflow, and calls Start.
//
// # Time slices
//
// Throttles with the same cache name share one TimeSlice in the service's
// TimeSliceRegistry, so several workflows can draw from one budget. Pass a
// registry in ServiceDependencies to share budgets between services in the
// same process.
//
// # Refusals
//
// A throttle that cannot admit a message within its wait bound refuses it.
// The refusal is returned to the router like a handler error: it is retried
// by the retry middleware and finally nacked, so the transport delivers the
// message again. Transports that cannot redeliver are reported at startup.
//
// # Notifications
//
// Notifiers publish through a NotificationPublisher. Without a
// NotificationTopic the service logs notifications; with one it publishes
// them as messages encoded with the configured codec (JSON or protobuf)
// behind a circuit breaker.
//
// # Transports
//
//   - channel: In-memory Go channels for testing
//   - kafka: High-throughput streaming with consumer groups
//   - rabbitmq: AMQP-based durable queues
//   - aws: AWS SNS/SQS with LocalStack support
//   - nats: High-performance messaging
//   - http: Request/response messaging
//
// Custom transports are added with RegisterTransport.
package flowguard
