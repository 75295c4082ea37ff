package interceptor

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// StartAll starts the interceptors in order. If one fails, those already
// started are stopped again and the first error is returned.
func StartAll(ctx context.Context, interceptors []Interceptor) error {
	for i, ic := range interceptors {
		if err := ic.Start(ctx); err != nil {
			_ = StopAll(ctx, interceptors[:i])
			return fmt.Errorf("start interceptor %s: %w", ic.Name(), err)
		}
	}
	return nil
}

// StopAll stops the interceptors concurrently and waits for all of them.
// Cancelling ctx bounds how long each Stop may block.
func StopAll(ctx context.Context, interceptors []Interceptor) error {
	var g errgroup.Group
	for _, ic := range interceptors {
		g.Go(func() error {
			if err := ic.Stop(ctx); err != nil {
				return fmt.Errorf("stop interceptor %s: %w", ic.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
