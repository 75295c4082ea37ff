package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/flowguard/internal/runtime/config"
	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	"github.com/drblury/flowguard/internal/runtime/interceptor"
	loggingpkg "github.com/drblury/flowguard/internal/runtime/logging"
	"github.com/drblury/flowguard/internal/runtime/metrics"
	"github.com/drblury/flowguard/internal/runtime/notify"
	"github.com/drblury/flowguard/internal/runtime/timeslice"
	"github.com/drblury/flowguard/transport"
	_ "github.com/drblury/flowguard/transport/channel"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to get the defaults.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	// Transports builds the publisher and subscriber. Nil means transport.DefaultRegistry.
	Transports *transport.Registry
	// Registerer receives the Prometheus collectors. Nil means prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Notifier overrides the notification publisher derived from the config.
	Notifier notify.Publisher
	// TimeSlices shares throttle windows with other services in the process.
	TimeSlices *timeslice.Registry
}

// Service wires a Watermill router, publisher, subscriber, and middleware chain
// together with the interceptors attached to its workflows.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router
	caps       transport.Capabilities

	registerer prometheus.Registerer
	metrics    *metrics.Metrics
	timeSlices *timeslice.Registry
	notifier   notify.Publisher

	workflows    []*WorkflowInfo
	interceptors []interceptor.Interceptor
	workflowsMu  sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
	running       []*http.Server

	resources *resourceTracker
}

// NewService constructs a Service for the supplied configuration. Register
// workflows on the returned Service before calling Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError("service", err)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating flowguard service", loggingpkg.LogFields{
		"pubsub_system": conf.PubSubSystem,
		"config":        conf,
	})

	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	timeSlices := deps.TimeSlices
	if timeSlices == nil {
		timeSlices = timeslice.NewRegistry()
	}

	s := &Service{
		Conf:       conf,
		Logger:     log,
		registerer: registerer,
		metrics:    metrics.New(registerer),
		timeSlices: timeSlices,
		resources:  newResourceTracker(),
	}

	transports := deps.Transports
	if transports == nil {
		transports = transport.DefaultRegistry
	}
	tcfg := conf.Transport()
	if tcfg.System == "" {
		tcfg.System = "channel"
	}
	tr, err := transports.Build(ctx, tcfg, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	s.publisher = tr.Publisher
	s.subscriber = tr.Subscriber
	s.caps = transports.Capabilities(tcfg.System)

	if !s.caps.RedeliversRefused() {
		log.Info("Transport does not redeliver refused messages; throttled messages may be dropped", loggingpkg.LogFields{
			"transport": tcfg.System,
		})
	}

	s.notifier, err = s.buildNotifier(deps.Notifier)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}

	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: conf.EffectiveShutdownTimeout()}, wmLogger)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		_ = tr.Close()
		return nil, err
	}

	return s, nil
}

func (s *Service) buildNotifier(override notify.Publisher) (notify.Publisher, error) {
	if override != nil {
		return override, nil
	}
	if s.Conf.NotificationTopic == "" {
		return notify.NewLogPublisher(s.Logger), nil
	}
	codec, err := notify.CodecFor(s.Conf.NotificationCodec)
	if err != nil {
		return nil, err
	}
	return notify.NewMessagePublisher(s.publisher, notify.MessagePublisherConfig{
		Topic: s.Conf.NotificationTopic,
		Codec: codec,
	}, s.Logger)
}

// Start starts every interceptor, the HTTP servers and the router, and blocks
// until the router stops. Interceptors are stopped afterwards within the
// configured shutdown timeout.
func (s *Service) Start(ctx context.Context) error {
	if err := s.metrics.Register(); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	interceptors := s.Interceptors()
	if err := interceptor.StartAll(ctx, interceptors); err != nil {
		return err
	}

	s.StartWebUIServer()
	s.startHTTPServers()

	runErr := routerRun(s.router, ctx)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Conf.EffectiveShutdownTimeout())
	defer cancel()

	stopErr := interceptor.StopAll(stopCtx, interceptors)
	if stopErr != nil {
		s.Logger.Error("Failed to stop interceptors", stopErr, nil)
	}
	s.stopHTTPServers(stopCtx)

	return errors.Join(runErr, stopErr)
}

// Close closes the router and the transport.
func (s *Service) Close() error {
	var errs []error
	if s.router != nil {
		errs = append(errs, s.router.Close())
	}
	errs = append(errs, transport.Transport{Publisher: s.publisher, Subscriber: s.subscriber}.Close())
	return errors.Join(errs...)
}

// Running is closed once the router is running.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

// Notifier returns the publisher interceptors created by the service raise
// notifications through.
func (s *Service) Notifier() notify.Publisher {
	return s.notifier
}

// TimeSlices returns the registry shared by the service's throttles.
func (s *Service) TimeSlices() *timeslice.Registry {
	return s.timeSlices
}

// Metrics returns the collectors shared by the service's interceptors.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// Capabilities describes the transport the service was built with.
func (s *Service) Capabilities() transport.Capabilities {
	return s.caps
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterHTTPHandler mounts handler on the server listening on port. Servers
// are started by Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.running = append(s.running, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
	}
}

func (s *Service) stopHTTPServers(ctx context.Context) {
	s.httpServersMu.Lock()
	running := s.running
	s.running = nil
	s.httpServersMu.Unlock()

	for _, srv := range running {
		if err := srv.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to shut down HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
		}
	}
}
