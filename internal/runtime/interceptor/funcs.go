package interceptor

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/flowguard/internal/runtime/logging"
)

// Funcs builds an Interceptor from plain functions. Nil functions are skipped.
type Funcs struct {
	InterceptorName string
	StartFunc       func(msg *message.Message) error
	EndFunc         func(in, out *message.Message)
}

func (f Funcs) Name() string {
	if f.InterceptorName == "" {
		return "funcs"
	}
	return f.InterceptorName
}

func (f Funcs) Start(context.Context) error { return nil }

func (f Funcs) Stop(context.Context) error { return nil }

func (f Funcs) OnStart(msg *message.Message) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(msg)
}

func (f Funcs) OnEnd(in, out *message.Message) {
	if f.EndFunc != nil {
		f.EndFunc(in, out)
	}
}

// Merge combines two Funcs; the functions of other run after those of f.
func (f Funcs) Merge(other Funcs) Funcs {
	merged := Funcs{InterceptorName: f.InterceptorName}
	if merged.InterceptorName == "" {
		merged.InterceptorName = other.InterceptorName
	}
	merged.StartFunc = chainStart(f.StartFunc, other.StartFunc)
	merged.EndFunc = chainEnd(f.EndFunc, other.EndFunc)
	return merged
}

func chainStart(a, b func(*message.Message) error) func(*message.Message) error {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(msg *message.Message) error {
		if err := a(msg); err != nil {
			return err
		}
		return b(msg)
	}
}

func chainEnd(a, b func(in, out *message.Message)) func(in, out *message.Message) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(in, out *message.Message) {
		a(in, out)
		b(in, out)
	}
}

// Logging returns an interceptor that logs every message entering and leaving
// the workflow.
func Logging(logger loggingpkg.ServiceLogger) Interceptor {
	log := loggingpkg.OrNop(logger)
	return Funcs{
		InterceptorName: "logging",
		StartFunc: func(msg *message.Message) error {
			log.Debug("Message started", loggingpkg.LogFields{
				"message_uuid": MessageID(msg),
				"size_bytes":   MessageSize(msg),
			})
			return nil
		},
		EndFunc: func(in, out *message.Message) {
			fields := loggingpkg.LogFields{
				"message_uuid": MessageID(in),
				"output_uuid":  MessageID(out),
			}
			if Failed(out) || Failed(in) {
				reason := FailureReason(out)
				if reason == "" {
					reason = FailureReason(in)
				}
				log.Error("Message failed", errors.New(reason), fields)
				return
			}
			log.Info("Message completed", fields)
		},
	}
}
