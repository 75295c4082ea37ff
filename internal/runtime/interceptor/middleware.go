package interceptor

import (
	"github.com/ThreeDotsLabs/watermill/message"
)

// Middleware runs the interceptors around a Watermill handler.
//
// Each attempt starts with the exception marker cleared. OnStart is called in order. When one refuses the message, the interceptors
// already started see OnEnd with the message marked failed, and the refusal is
// returned so the router nacks the message for redelivery. OnEnd is called in
// reverse order; out is the first produced message, or the input when the
// handler produced nothing or failed.
func Middleware(interceptors ...Interceptor) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ClearFailed(msg)
			started := 0
			for _, ic := range interceptors {
				if err := ic.OnStart(msg); err != nil {
					MarkFailed(msg, err)
					endAll(interceptors[:started], msg, msg)
					return nil, err
				}
				started++
			}

			produced, err := h(msg)

			out := msg
			if err != nil {
				MarkFailed(msg, err)
			} else if len(produced) > 0 && produced[0] != nil {
				out = produced[0]
			}
			endAll(interceptors, msg, out)

			return produced, err
		}
	}
}

func endAll(interceptors []Interceptor, in, out *message.Message) {
	for i := len(interceptors) - 1; i >= 0; i-- {
		interceptors[i].OnEnd(in, out)
	}
}
