package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	audit "contactlink/pkg/platform/audit"
	txcontext "contactlink/pkg/platform/tx"
)

// The service only appends; these readers let the tests inspect the table.

// ListByContact returns the events that touched id, either as the record
// acted on or as the primary of its identity, oldest first.
func (s *Store) ListByContact(ctx context.Context, id int64) ([]audit.Event, error) {
	return s.list(ctx, psql.Select(eventColumns...).
		From("contact_events").
		Where(sq.Or{sq.Eq{"contact_id": id}, sq.Eq{"primary_contact_id": id}}).
		OrderBy("occurred_at ASC", "id ASC"))
}

// ListRecent returns the limit most recent events, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	return s.list(ctx, psql.Select(eventColumns...).
		From("contact_events").
		OrderBy("occurred_at DESC", "id DESC").
		Limit(uint64(limit)))
}

func (s *Store) list(ctx context.Context, b sq.SelectBuilder) ([]audit.Event, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			id       uuid.UUID
			category string
		)
		if err := rows.Scan(&id, &category, &e.Action, &e.ContactID, &e.PrimaryContactID,
			&e.Reason, &e.RequestID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.ID = id.String()
		e.Category = audit.EventCategory(category)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
