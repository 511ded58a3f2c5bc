// Package postgres keeps identity audit events in a PostgreSQL table next to
// the contacts they describe.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	audit "contactlink/pkg/platform/audit"
	txcontext "contactlink/pkg/platform/tx"
)

const schema = `
CREATE TABLE IF NOT EXISTS contact_events (
	id                 UUID PRIMARY KEY,
	category           TEXT NOT NULL,
	action             TEXT NOT NULL,
	contact_id         BIGINT NOT NULL DEFAULT 0,
	primary_contact_id BIGINT NOT NULL DEFAULT 0,
	reason             TEXT NOT NULL DEFAULT '',
	request_id         TEXT NOT NULL DEFAULT '',
	occurred_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS contact_events_contact_idx ON contact_events (contact_id);
CREATE INDEX IF NOT EXISTS contact_events_primary_idx ON contact_events (primary_contact_id);
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var eventColumns = []string{
	"id", "category", "action", "contact_id", "primary_contact_id",
	"reason", "request_id", "occurred_at",
}

// Store implements audit.Store on the contact_events table. Appends made with
// a transaction context join that transaction.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the events table and its indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply contact_events schema: %w", err)
	}
	return nil
}

// Append inserts the event. Missing ids, categories and timestamps are filled
// in; an event with an id that is already stored is ignored.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	id, err := uuid.Parse(event.ID)
	if err != nil {
		return fmt.Errorf("parse audit event id: %w", err)
	}

	query, args, err := psql.Insert("contact_events").
		Columns(eventColumns...).
		Values(id, string(event.Category), event.Action, event.ContactID, event.PrimaryContactID,
			event.Reason, event.RequestID, event.Timestamp.UTC()).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
