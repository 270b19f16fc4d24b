// Package async provides safe goroutine helpers for fire-and-forget
// work. Use these instead of bare `go func()` to get panic recovery,
// timeout enforcement, and error logging.
package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/scmguard/scmguard/pkg/observability"
)

// SafeGo executes fn in a goroutine with panic recovery, a timeout, and
// error logging. The task runs detached from the caller's context:
// request-scoped work that must outlive the response (audit writes,
// cache warming) should not die with the request.
func SafeGo(logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).Errorf("background task %s failed", taskName)
		}
	}()
}
