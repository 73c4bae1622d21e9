// Package reporting sends relay failures to Sentry.
package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/velmie/ecsync"
)

// Options configures the Sentry client.
type Options struct {
	Dsn         string
	Release     string
	Environment string
}

// Init configures the global Sentry client. An empty Dsn keeps reporting disabled.
func Init(opts Options) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:              opts.Dsn,
		AttachStacktrace: true,
		Release:          opts.Release,
		Environment:      opts.Environment,
		SampleRate:       1,
	})
}

// Flush waits for buffered events to be sent.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// ErrorHandler returns a poller error handler capturing every failure on hub, tagged with
// the failing stage, kind and group. A nil hub uses the current hub.
func ErrorHandler(hub *sentry.Hub) ecsync.ErrorHandler {
	return func(_ context.Context, err error) {
		h := hub
		if h == nil {
			h = sentry.CurrentHub()
		}

		h.WithScope(func(scope *sentry.Scope) {
			var (
				fetchErr *ecsync.FetchError
				pipeErr  *ecsync.PipelineError
			)
			switch {
			case errors.As(err, &fetchErr):
				scope.SetTag("stage", "fetch")
				scope.SetTag(ecsync.LogKeyKind, fetchErr.Kind.String())
			case errors.As(err, &pipeErr):
				scope.SetTag("stage", "pipeline")
				scope.SetTag(ecsync.LogKeyKind, pipeErr.Kind.String())
				if pipeErr.GroupID != "" {
					scope.SetTag(ecsync.LogKeyGroupID, pipeErr.GroupID)
				}
			}
			if errors.Is(err, ecsync.ErrWorkerPanic) {
				scope.SetLevel(sentry.LevelFatal)
			}
			h.CaptureException(err)
		})
	}
}
