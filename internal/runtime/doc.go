/*
Package runtime hosts flowguard workflows on a Watermill router.

# Architecture Overview

A workflow is a Watermill handler plus an ordered chain of interceptors.
Interceptors observe every message before and after the handler runs. They
can refuse a message (the throttle does this when its window is full) or only
watch it (statistics, notifiers, the slow message tracker). A refused message
is returned to the router as an error, so it is retried and finally nacked
for redelivery by the transport.

# Package Structure

## Core Service (service.go)

The Service struct wires together:
  - Message router (Watermill)
  - Publisher and subscriber built from the transport registry
  - Middleware chain
  - The time slice registry shared by every throttle
  - The notification publisher shared by every notifier
  - HTTP servers for metrics and the introspection API

## Workflows (workflow.go, interceptors.go)

RegisterWorkflow attaches a handler and its interceptors. The Service.New*
constructors bind interceptors to the service's shared collaborators.

## Middleware (middleware.go)

  - CorrelationID: Ensures message traceability
  - LogMessages: Debug logging of message payloads and refusals
  - Tracer: OpenTelemetry distributed tracing
  - Metrics: Prometheus router metrics
  - Retry: Exponential backoff retry logic
  - Recoverer: Panic recovery

## WebUI (webui.go)

JSON endpoints describing workflows, interceptor windows and process
resource usage.

# Sub-packages

  - config/: Service configuration with validation
  - errors/: Sentinel errors and error types
  - ids/: ULID generation for message IDs
  - interceptor/: The interceptor contract and its handler middleware
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - metadata/: Message metadata utilities
  - metrics/: Prometheus collectors shared by the interceptors
  - notify/: Notification publishers, threshold and count notifiers
  - slowmsg/: Slow message tracker
  - statistics/: Rolling windowed statistics
  - throttle/: Admission control over shared time slices
  - timeslice/: The time slice registry

# Usage Example

	svc, err := flowguard.NewService(cfg, logger, ctx, flowguard.ServiceDependencies{})
	if err != nil {
		return err
	}

	limiter := svc.NewThrottle(flowguard.ThrottleConfig{CacheName: "orders", MaxPerWindow: 100})
	stats := svc.NewMessageMetrics(flowguard.StatisticsConfig{Name: "orders"})

	err = flowguard.RegisterWorkflow(svc, flowguard.WorkflowRegistration{
		Name:         "order-processor",
		ConsumeQueue: "orders.created",
		PublishQueue: "orders.processed",
		Handler:      processOrder,
		Interceptors: []flowguard.Interceptor{limiter, stats},
	})

	return svc.Start(ctx)
*/
package runtime
