package contact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"

	"contactlink/internal/identity/models"
	"contactlink/pkg/platform/sentinel"
	txcontext "contactlink/pkg/platform/tx"
)

const contactsTable = "contacts"

var contactColumns = []string{
	"id", "email", "phone_number", "linked_id", "link_precedence",
	"created_at", "updated_at", "deleted_at",
}

// dialect captures what differs between the SQL backends.
type dialect struct {
	placeholder sq.PlaceholderFormat
	encodeTime  func(time.Time) any
	classify    func(error) error
}

// sqlStore implements the contact store on database/sql. Calls join the
// transaction carried by ctx, if any.
type sqlStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	dialect dialect
}

func newSQLStore(db *sql.DB, d dialect) sqlStore {
	return sqlStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(d.placeholder),
		dialect: d,
	}
}

func (s *sqlStore) Insert(ctx context.Context, nc models.NewContact) (*models.Contact, error) {
	createdAt := nc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query, args, err := s.builder.
		Insert(contactsTable).
		Columns("email", "phone_number", "linked_id", "link_precedence", "created_at", "updated_at").
		Values(
			nullableString(nc.Email),
			nullableString(nc.PhoneNumber),
			nc.Link.LinkedIDValue(),
			string(nc.Link.Precedence()),
			s.dialect.encodeTime(createdAt),
			s.dialect.encodeTime(createdAt),
		).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert contact: %w", err)
	}

	var id int64
	if err := txcontext.QuerierFrom(ctx, s.db).QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNoRowReturned
		}
		return nil, fmt.Errorf("insert contact: %w", s.dialect.classify(err))
	}

	return &models.Contact{
		ID:          models.ContactID(id),
		Email:       nc.Email,
		PhoneNumber: nc.PhoneNumber,
		Link:        nc.Link,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}, nil
}

func (s *sqlStore) UpdateToSecondary(ctx context.Context, id, linkedID models.ContactID, now time.Time) error {
	query, args, err := s.builder.
		Update(contactsTable).
		Set("link_precedence", string(models.PrecedenceSecondary)).
		Set("linked_id", int64(linkedID)).
		Set("updated_at", s.dialect.encodeTime(now)).
		Where(sq.Eq{"id": int64(id), "deleted_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build demote contact: %w", err)
	}

	res, err := txcontext.QuerierFrom(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("demote contact %s: %w", id, s.dialect.classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("demote contact %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("demote contact %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *sqlStore) RelinkSecondaries(ctx context.Context, from, to models.ContactID, now time.Time) ([]models.ContactID, error) {
	query, args, err := s.builder.
		Update(contactsTable).
		Set("linked_id", int64(to)).
		Set("updated_at", s.dialect.encodeTime(now)).
		Where(sq.Eq{"linked_id": int64(from)}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build relink contacts: %w", err)
	}

	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("relink contacts of %s: %w", from, s.dialect.classify(err))
	}
	defer rows.Close()

	var ids []models.ContactID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan relinked contact: %w", err)
		}
		ids = append(ids, models.ContactID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("relink contacts of %s: %w", from, s.dialect.classify(err))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ListAll returns live contacts ordered by id.
func (s *sqlStore) ListAll(ctx context.Context) ([]*models.Contact, error) {
	query, args, err := s.builder.
		Select(contactColumns...).
		From(contactsTable).
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list contacts: %w", err)
	}
	return s.queryContacts(ctx, query, args...)
}

func (s *sqlStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping contact store: %w", s.dialect.classify(err))
	}
	return nil
}

func (s *sqlStore) queryContacts(ctx context.Context, query string, args ...any) ([]*models.Contact, error) {
	rows, err := txcontext.QuerierFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", s.dialect.classify(err))
	}
	defer rows.Close()

	var out []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", s.dialect.classify(err))
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		id                   int64
		email, phone         sql.NullString
		linkedID             sql.NullInt64
		precedence           string
		createdAt, updatedAt any
		deletedAt            any
	)
	if err := row.Scan(&id, &email, &phone, &linkedID, &precedence, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, fmt.Errorf("scan contact: %w", err)
	}

	var linked *int64
	if linkedID.Valid {
		linked = &linkedID.Int64
	}
	link, err := models.NewLink(models.LinkPrecedence(precedence), linked)
	if err != nil {
		return nil, fmt.Errorf("contact %d: %w", id, err)
	}

	c := &models.Contact{
		ID:          models.ContactID(id),
		Email:       stringOrNil(email),
		PhoneNumber: stringOrNil(phone),
		Link:        link,
	}
	if c.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("contact %d created_at: %w", id, err)
	}
	if c.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("contact %d updated_at: %w", id, err)
	}
	if deletedAt != nil {
		t, err := decodeTime(deletedAt)
		if err != nil {
			return nil, fmt.Errorf("contact %d deleted_at: %w", id, err)
		}
		c.DeletedAt = &t
	}
	return c, nil
}

// decodeTime accepts a native timestamp or unix milliseconds.
func decodeTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case int64:
		return fromMillis(t), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringOrNil(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
