// Package logsink writes audit events to a structured logger.
package logsink

import (
	"context"
	"log/slog"

	audit "contactlink/pkg/platform/audit"
)

// Store implements audit.Store on top of slog. It is the default sink when no
// broker is configured.
type Store struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	s.logger.InfoContext(ctx, event.Action,
		"log_type", "audit",
		"event_id", event.ID,
		"category", string(event.Category),
		"contact_id", event.ContactID,
		"primary_contact_id", event.PrimaryContactID,
		"reason", event.Reason,
		"request_id", event.RequestID,
	)
	return nil
}
