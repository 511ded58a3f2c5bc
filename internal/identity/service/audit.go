package service

import (
	"context"
	"log/slog"

	"contactlink/internal/identity/models"
	audit "contactlink/pkg/platform/audit"
	"contactlink/pkg/requestcontext"
)

// AuditPublisher receives identity audit events once their transaction has
// committed.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// auditEmitter collects events during a transaction attempt; flush publishes
// them after commit so a rolled back or retried attempt leaves no trace.
type auditEmitter struct {
	logger    *slog.Logger
	publisher AuditPublisher
}

func newAuditEmitter(logger *slog.Logger, publisher AuditPublisher) *auditEmitter {
	return &auditEmitter{logger: logger, publisher: publisher}
}

type pendingEvents []audit.Event

func (p *pendingEvents) contactCreated(c *models.Contact, primary models.ContactID) {
	*p = append(*p, audit.Event{
		Action:           string(audit.EventContactCreated),
		ContactID:        int64(c.ID),
		PrimaryContactID: int64(primary),
		Reason:           string(c.Link.Precedence()),
	})
}

func (p *pendingEvents) contactDemoted(id, primary models.ContactID) {
	*p = append(*p, audit.Event{
		Action:           string(audit.EventContactDemoted),
		ContactID:        int64(id),
		PrimaryContactID: int64(primary),
	})
}

func (p *pendingEvents) contactRelinked(id, primary models.ContactID) {
	*p = append(*p, audit.Event{
		Action:           string(audit.EventContactRelinked),
		ContactID:        int64(id),
		PrimaryContactID: int64(primary),
	})
}

func (p *pendingEvents) identityInconsistent(group []*models.Contact) {
	var oldest int64
	if len(group) > 0 {
		oldest = int64(group[0].ID)
	}
	*p = append(*p, audit.Event{
		Action:    string(audit.EventIdentityInconsistent),
		ContactID: oldest,
		Reason:    "matched group holds no primary contact",
	})
}

func (e *auditEmitter) flush(ctx context.Context, events pendingEvents) {
	requestID := requestcontext.RequestID(ctx)
	for _, event := range events {
		event.RequestID = requestID
		if e.publisher == nil {
			continue
		}
		if err := e.publisher.Emit(ctx, event); err != nil && e.logger != nil {
			e.logger.WarnContext(ctx, "failed to publish audit event",
				"action", event.Action,
				"contact_id", event.ContactID,
				"request_id", requestID,
				"error", err,
			)
		}
	}
}
