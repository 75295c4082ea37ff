package flowguard

import (
	runtimepkg "github.com/drblury/flowguard/internal/runtime"
	configpkg "github.com/drblury/flowguard/internal/runtime/config"
	errspkg "github.com/drblury/flowguard/internal/runtime/errors"
	idspkg "github.com/drblury/flowguard/internal/runtime/ids"
	"github.com/drblury/flowguard/internal/runtime/interceptor"
	jsoncodec "github.com/drblury/flowguard/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/flowguard/internal/runtime/logging"
	metadatapkg "github.com/drblury/flowguard/internal/runtime/metadata"
	"github.com/drblury/flowguard/internal/runtime/notify"
	"github.com/drblury/flowguard/internal/runtime/slowmsg"
	"github.com/drblury/flowguard/internal/runtime/statistics"
	"github.com/drblury/flowguard/internal/runtime/throttle"
	"github.com/drblury/flowguard/internal/runtime/timeslice"
	"github.com/drblury/flowguard/transport"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies

	WorkflowRegistration = runtimepkg.WorkflowRegistration
	WorkflowInfo         = runtimepkg.WorkflowInfo

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	ConfigValidationError = errspkg.ConfigValidationError

	// Interceptors
	Interceptor      = interceptor.Interceptor
	Inspector        = interceptor.Inspector
	Inspection       = interceptor.Inspection
	InterceptorFuncs = interceptor.Funcs

	// Time slices and admission control
	TimeSlice         = timeslice.TimeSlice
	TimeSliceRegistry = timeslice.Registry
	Throttle          = throttle.Throttle
	ThrottleConfig    = throttle.Config

	// Rolling statistics
	StatisticsConfig  = statistics.Config
	FilterConfig      = statistics.FilterConfig
	MetadataConfig    = statistics.MetadataConfig
	TotalsConfig      = statistics.TotalsConfig
	MessageMetrics    = statistics.MessageMetrics
	MessageStatistic  = statistics.MessageStatistic
	MetadataCount     = statistics.MetadataCount
	MetadataTotals    = statistics.MetadataTotals
	MetadataStatistic = statistics.MetadataStatistic

	// Notifications
	NotificationPublisher  = notify.Publisher
	PublisherFunc          = notify.PublisherFunc
	Notification           = notify.Notification
	NotificationCodec      = notify.Codec
	MessagePublisherConfig = notify.MessagePublisherConfig
	ThresholdConfig        = notify.ThresholdConfig
	ThresholdNotifier      = notify.ThresholdNotifier
	CountConfig            = notify.CountConfig
	CountNotifier          = notify.CountNotifier
	SlowMessageConfig      = slowmsg.Config
	SlowMessageTracker     = slowmsg.Tracker

	// Transports
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

var (
	NewService     = runtimepkg.NewService
	ValidateConfig = configpkg.ValidateConfig

	RegisterWorkflow = runtimepkg.RegisterWorkflow
	NewMessage       = runtimepkg.NewMessage
	Publish          = runtimepkg.Publish

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	NewTimeSliceRegistry = timeslice.NewRegistry
	LoggingInterceptor   = interceptor.Logging
	Threshold            = notify.Threshold
	NewLogPublisher      = notify.NewLogPublisher
	NewMessagePublisher  = notify.NewMessagePublisher
	MultiPublisher       = notify.Multi
	NotificationCodecFor = notify.CodecFor

	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode
	NewDecoder    = jsoncodec.NewDecoder

	ErrServiceRequired         = errspkg.ErrServiceRequired
	ErrHandlerRequired         = errspkg.ErrHandlerRequired
	ErrConsumeQueueRequired    = errspkg.ErrConsumeQueueRequired
	ErrWorkflowNameRequired    = errspkg.ErrWorkflowNameRequired
	ErrPublisherRequired       = errspkg.ErrPublisherRequired
	ErrTopicRequired           = errspkg.ErrTopicRequired
	ErrCodecRequired           = errspkg.ErrCodecRequired
	ErrConfigRequired          = errspkg.ErrConfigRequired
	ErrLoggerRequired          = errspkg.ErrLoggerRequired
	ErrCacheNameRequired       = errspkg.ErrCacheNameRequired
	ErrRegistryRequired        = errspkg.ErrRegistryRequired
	ErrThrottleStopped         = errspkg.ErrThrottleStopped
	ErrThrottleWaitTimeout     = errspkg.ErrThrottleWaitTimeout
	ErrThresholdRequired       = errspkg.ErrThresholdRequired
	ErrMessageCountRequired    = errspkg.ErrMessageCountRequired
	ErrMetadataKeyRequired     = errspkg.ErrMetadataKeyRequired
	ErrNotificationNameMissing = errspkg.ErrNotificationNameMissing

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// Metadata keys - use these constants for standard metadata fields.
const (
	MetadataKeyCorrelationID = runtimepkg.MetadataKeyCorrelationID
	MetadataKeyException     = interceptor.MetadataKeyException
	MetadataKeyNotification  = notify.MetadataKeyNotification
)

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
