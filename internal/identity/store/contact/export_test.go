package contact

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"contactlink/internal/identity/models"
	"contactlink/pkg/platform/sentinel"
)

// Readers below serve the store tests only; the consolidator never looks
// records up by id.

// FindByID returns one contact, deleted or not.
func (s *InMemory) FindByID(_ context.Context, id models.ContactID) (*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

// FindByIDs returns the contacts with the given ids, deleted or not, ordered by id.
func (s *sqlStore) FindByIDs(ctx context.Context, ids ...models.ContactID) ([]*models.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}
	query, args, err := s.builder.
		Select(contactColumns...).
		From(contactsTable).
		Where(sq.Eq{"id": raw}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find contacts: %w", err)
	}
	return s.queryContacts(ctx, query, args...)
}

// FindByID returns one contact, deleted or not.
func (s *sqlStore) FindByID(ctx context.Context, id models.ContactID) (*models.Contact, error) {
	found, err := s.FindByIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return found[0], nil
}
