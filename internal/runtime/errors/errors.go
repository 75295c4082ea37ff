package errors

import sterrors "errors"

var (
	ErrServiceRequired      = sterrors.New("flowguard: service is required")
	ErrHandlerRequired      = sterrors.New("flowguard: handler function is required")
	ErrConsumeQueueRequired = sterrors.New("flowguard: consume queue is required")
	ErrWorkflowNameRequired = sterrors.New("flowguard: workflow name is required")
	ErrPublisherRequired    = sterrors.New("flowguard: publisher is required")
	ErrTopicRequired        = sterrors.New("flowguard: topic is required")
	ErrCodecRequired        = sterrors.New("flowguard: notification codec is required")
	ErrConfigRequired       = sterrors.New("flowguard: configuration is required")
	ErrLoggerRequired       = sterrors.New("flowguard: logger is required")

	ErrCacheNameRequired       = sterrors.New("flowguard: throttle cache name is required")
	ErrRegistryRequired        = sterrors.New("flowguard: time slice registry is required")
	ErrThrottleStopped         = sterrors.New("flowguard: throttle stopped")
	ErrThrottleWaitTimeout     = sterrors.New("flowguard: throttle wait could not be confirmed")
	ErrThresholdRequired       = sterrors.New("flowguard: at least one threshold is required")
	ErrMessageCountRequired    = sterrors.New("flowguard: message count is required")
	ErrMetadataKeyRequired     = sterrors.New("flowguard: metadata key is required")
	ErrNotificationNameMissing = sterrors.New("flowguard: notification name is required")
)

// ConfigValidationError marks a configuration problem detected while starting a component.
type ConfigValidationError struct {
	Component string
	Err       error
}

func (e ConfigValidationError) Error() string {
	if e.Component == "" {
		return "flowguard: invalid configuration: " + e.Err.Error()
	}
	return "flowguard: invalid " + e.Component + " configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(component string, err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Component: component, Err: err}
}
