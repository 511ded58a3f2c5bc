package worker

import (
	"context"
	"log/slog"

	audit "contactlink/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them. A failed
// append is logged and the worker moves on; audit sinks never block the
// request path.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run appends events until ctx is done or the inbox is closed. When the inbox
// is closed Run drains what is left and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.append(ctx, event)
		}
	}
}

func (w *Worker) append(ctx context.Context, event audit.Event) {
	if err := w.store.Append(ctx, event); err != nil {
		w.logger.WarnContext(ctx, "failed to append audit event",
			"action", event.Action,
			"contact_id", event.ContactID,
			"error", err,
		)
	}
}
