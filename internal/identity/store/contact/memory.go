package contact

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"contactlink/internal/identity/models"
	"contactlink/pkg/platform/sentinel"
)

// InMemory keeps contacts in process memory. Records handed out are copies.
type InMemory struct {
	mu       sync.RWMutex
	contacts map[models.ContactID]*models.Contact
	nextID   models.ContactID
}

func NewInMemory() *InMemory {
	return &InMemory{contacts: make(map[models.ContactID]*models.Contact)}
}

func (s *InMemory) Insert(_ context.Context, nc models.NewContact) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if linked, ok := nc.Link.LinkedID(); ok {
		if _, found := s.contacts[linked]; !found {
			return nil, fmt.Errorf("link to contact %s: %w", linked, sentinel.ErrNotFound)
		}
	}

	s.nextID++
	c := &models.Contact{
		ID:          s.nextID,
		Email:       nc.Email,
		PhoneNumber: nc.PhoneNumber,
		Link:        nc.Link,
		CreatedAt:   nc.CreatedAt,
		UpdatedAt:   nc.CreatedAt,
	}
	s.contacts[c.ID] = c.Clone()
	return c, nil
}

func (s *InMemory) UpdateToSecondary(_ context.Context, id, linkedID models.ContactID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return fmt.Errorf("contact %s: %w", id, sentinel.ErrNotFound)
	}
	if _, ok := s.contacts[linkedID]; !ok {
		return fmt.Errorf("link to contact %s: %w", linkedID, sentinel.ErrNotFound)
	}
	c.Link = models.SecondaryLink(linkedID)
	c.UpdatedAt = now
	return nil
}

func (s *InMemory) RelinkSecondaries(_ context.Context, from, to models.ContactID, now time.Time) ([]models.ContactID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var relinked []models.ContactID
	for id, c := range s.contacts {
		if linked, ok := c.Link.LinkedID(); ok && linked == from {
			c.Link = models.SecondaryLink(to)
			c.UpdatedAt = now
			relinked = append(relinked, id)
		}
	}
	sort.Slice(relinked, func(i, j int) bool { return relinked[i] < relinked[j] })
	return relinked, nil
}

// ListAll returns live contacts ordered by id.
func (s *InMemory) ListAll(_ context.Context) ([]*models.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		if c.IsDeleted() {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Ping always succeeds.
func (s *InMemory) Ping(context.Context) error {
	return nil
}
