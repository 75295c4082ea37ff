package runtime

import (
	"reflect"
	"slices"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	"github.com/drblury/flowguard/internal/runtime/interceptor"
)

// WorkflowRegistration wires a Watermill handler and the interceptors that
// observe it.
type WorkflowRegistration struct {
	Name         string
	ConsumeQueue string
	// PublishQueue receives the messages the handler produces. Empty makes the
	// workflow a consumer only.
	PublishQueue string
	Handler      message.HandlerFunc
	// Interceptors run in order around every message. An interceptor may be
	// shared between workflows; it is started and stopped once.
	Interceptors []interceptor.Interceptor
	Subscriber   message.Subscriber
	Publisher    message.Publisher
}

// WorkflowInfo describes a registered workflow for introspection.
type WorkflowInfo struct {
	Name         string   `json:"name"`
	ConsumeQueue string   `json:"consume_queue"`
	PublishQueue string   `json:"publish_queue,omitempty"`
	Interceptors []string `json:"interceptors"`
}

// RegisterWorkflow attaches the workflow to the service router. The
// interceptor chain is installed as handler-level middleware, inside the
// service-wide middleware.
func RegisterWorkflow(svc *Service, cfg WorkflowRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	return svc.registerWorkflow(cfg)
}

func (s *Service) registerWorkflow(cfg WorkflowRegistration) error {
	if cfg.Name == "" {
		return errspkg.ErrWorkflowNameRequired
	}
	if cfg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if cfg.ConsumeQueue == "" {
		return errspkg.ErrConsumeQueueRequired
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = s.subscriber
	}
	if cfg.Publisher == nil {
		cfg.Publisher = s.publisher
	}

	names := make([]string, 0, len(cfg.Interceptors))
	for _, ic := range cfg.Interceptors {
		names = append(names, ic.Name())
	}

	var handler *message.Handler
	if cfg.PublishQueue == "" {
		noPublish := func(msg *message.Message) error {
			_, err := cfg.Handler(msg)
			return err
		}
		handler = s.router.AddNoPublisherHandler(cfg.Name, cfg.ConsumeQueue, cfg.Subscriber, noPublish)
	} else {
		handler = s.router.AddHandler(cfg.Name, cfg.ConsumeQueue, cfg.Subscriber, cfg.PublishQueue, cfg.Publisher, cfg.Handler)
	}
	if len(cfg.Interceptors) > 0 {
		handler.AddMiddleware(interceptor.Middleware(cfg.Interceptors...))
	}

	s.workflowsMu.Lock()
	defer s.workflowsMu.Unlock()

	s.workflows = append(s.workflows, &WorkflowInfo{
		Name:         cfg.Name,
		ConsumeQueue: cfg.ConsumeQueue,
		PublishQueue: cfg.PublishQueue,
		Interceptors: names,
	})
	for _, ic := range cfg.Interceptors {
		if !containsInterceptor(s.interceptors, ic) {
			s.interceptors = append(s.interceptors, ic)
		}
	}
	return nil
}

// Workflows returns the registered workflows.
func (s *Service) Workflows() []WorkflowInfo {
	s.workflowsMu.RLock()
	defer s.workflowsMu.RUnlock()

	out := make([]WorkflowInfo, 0, len(s.workflows))
	for _, w := range s.workflows {
		info := *w
		info.Interceptors = slices.Clone(w.Interceptors)
		out = append(out, info)
	}
	return out
}

// Interceptors returns every interceptor attached to a workflow, each once,
// in registration order.
func (s *Service) Interceptors() []interceptor.Interceptor {
	s.workflowsMu.RLock()
	defer s.workflowsMu.RUnlock()
	return slices.Clone(s.interceptors)
}

// Inspect returns the state of every interceptor that exposes it.
func (s *Service) Inspect() []interceptor.Inspection {
	interceptors := s.Interceptors()
	out := make([]interceptor.Inspection, 0, len(interceptors))
	for _, ic := range interceptors {
		if inspector, ok := ic.(interceptor.Inspector); ok {
			out = append(out, inspector.Inspect())
			continue
		}
		out = append(out, interceptor.Inspection{Name: ic.Name(), Kind: "custom"})
	}
	return out
}

// containsInterceptor compares by identity. Values of uncomparable types, such
// as interceptor.Funcs, are never considered shared.
func containsInterceptor(list []interceptor.Interceptor, ic interceptor.Interceptor) bool {
	if !reflect.TypeOf(ic).Comparable() {
		return false
	}
	for _, existing := range list {
		if existing == ic {
			return true
		}
	}
	return false
}
