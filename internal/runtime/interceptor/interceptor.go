// Package interceptor defines the hooks a workflow invokes around each message
// and the Watermill middleware that drives them.
package interceptor

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
)

// MetadataKeyException marks a message whose processing failed. The value is
// the error text.
const MetadataKeyException = "flowguard_exception"

// Interceptor observes a workflow. OnStart runs before the handler and may
// refuse the message for this attempt by returning an error. OnEnd runs after
// the handler, whether it succeeded or not; failure is carried by the
// exception marker on the messages, never by a returned error.
type Interceptor interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	OnStart(msg *message.Message) error
	OnEnd(in, out *message.Message)
}

// Inspector is implemented by interceptors that expose their state for
// monitoring.
type Inspector interface {
	Inspect() Inspection
}

// Inspection is a point-in-time view of an interceptor. History holds a
// defensive copy of the window list for windowed interceptors.
type Inspection struct {
	Name                  string         `json:"name"`
	Kind                  string         `json:"kind"`
	WindowCount           int            `json:"window_count,omitempty"`
	WindowDurationSeconds int            `json:"window_duration_seconds,omitempty"`
	History               any            `json:"history,omitempty"`
	Details               map[string]any `json:"details,omitempty"`
}

// MessageID returns the identity of msg.
func MessageID(msg *message.Message) string {
	if msg == nil {
		return ""
	}
	return msg.UUID
}

// MessageSize returns the payload size of msg in bytes.
func MessageSize(msg *message.Message) int64 {
	if msg == nil {
		return 0
	}
	return int64(len(msg.Payload))
}

// Failed reports whether msg carries the exception marker.
func Failed(msg *message.Message) bool {
	if msg == nil {
		return false
	}
	return msg.Metadata.Get(MetadataKeyException) != ""
}

// FailureReason returns the error text recorded by MarkFailed.
func FailureReason(msg *message.Message) string {
	if msg == nil {
		return ""
	}
	return msg.Metadata.Get(MetadataKeyException)
}

// MarkFailed sets the exception marker on msg.
func MarkFailed(msg *message.Message, err error) {
	if msg == nil {
		return
	}
	reason := "processing failed"
	if err != nil && err.Error() != "" {
		reason = err.Error()
	}
	if msg.Metadata == nil {
		msg.Metadata = make(message.Metadata)
	}
	msg.Metadata.Set(MetadataKeyException, reason)
}

// ClearFailed removes the exception marker, so a redelivered or retried
// message starts clean.
func ClearFailed(msg *message.Message) {
	if msg == nil || msg.Metadata == nil {
		return
	}
	delete(msg.Metadata, MetadataKeyException)
}

// MetadataValue returns the metadata value for key on msg.
func MetadataValue(msg *message.Message, key string) (string, bool) {
	if msg == nil || msg.Metadata == nil {
		return "", false
	}
	v, ok := msg.Metadata[key]
	return v, ok
}
