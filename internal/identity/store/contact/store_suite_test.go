package contact_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"contactlink/internal/identity/models"
	"contactlink/pkg/platform/sentinel"
)

type contactStore interface {
	Insert(ctx context.Context, c models.NewContact) (*models.Contact, error)
	UpdateToSecondary(ctx context.Context, id, linkedID models.ContactID, now time.Time) error
	RelinkSecondaries(ctx context.Context, from, to models.ContactID, now time.Time) ([]models.ContactID, error)
	ListAll(ctx context.Context) ([]*models.Contact, error)
	FindByID(ctx context.Context, id models.ContactID) (*models.Contact, error)
}

// storeSuite holds behaviour every contact store shares. Backend suites embed
// it and set store in SetupTest.
type storeSuite struct {
	suite.Suite
	ctx   context.Context
	store contactStore
}

var t0 = time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func (s *storeSuite) insert(email, phone string, link models.Link, at time.Time) *models.Contact {
	nc := models.NewContact{Link: link, CreatedAt: at}
	if email != "" {
		nc.Email = strPtr(email)
	}
	if phone != "" {
		nc.PhoneNumber = strPtr(phone)
	}
	c, err := s.store.Insert(s.ctx, nc)
	s.Require().NoError(err)
	return c
}

func (s *storeSuite) TestInsertAndList() {
	s.Run("assigns increasing ids and keeps attributes", func() {
		first := s.insert("lorraine@hillvalley.edu", "123456", models.PrimaryLink(), t0)
		second := s.insert("", "123456", models.SecondaryLink(first.ID), t0.Add(time.Minute))

		s.Greater(int64(second.ID), int64(first.ID))

		all, err := s.store.ListAll(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(all, 2)
		s.Equal(first.ID, all[0].ID)
		s.Equal("lorraine@hillvalley.edu", *all[0].Email)
		s.True(all[0].IsPrimary())
		s.True(all[0].CreatedAt.Equal(t0))
		s.True(all[0].UpdatedAt.Equal(t0))

		s.Nil(all[1].Email)
		linked, ok := all[1].Link.LinkedID()
		s.True(ok)
		s.Equal(first.ID, linked)
	})
}

func (s *storeSuite) TestInsertRejectsDanglingLink() {
	_, err := s.store.Insert(s.ctx, models.NewContact{
		Email:     strPtr("marty@hillvalley.edu"),
		Link:      models.SecondaryLink(9999),
		CreatedAt: t0,
	})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeSuite) TestUpdateToSecondary() {
	older := s.insert("a@x.com", "111", models.PrimaryLink(), t0)
	newer := s.insert("b@x.com", "111", models.PrimaryLink(), t0.Add(time.Minute))
	later := t0.Add(time.Hour)

	s.Require().NoError(s.store.UpdateToSecondary(s.ctx, newer.ID, older.ID, later))

	got, err := s.store.FindByID(s.ctx, newer.ID)
	s.Require().NoError(err)
	linked, ok := got.Link.LinkedID()
	s.True(ok)
	s.Equal(older.ID, linked)
	s.True(got.UpdatedAt.Equal(later))
	s.True(got.CreatedAt.Equal(newer.CreatedAt), "created_at is immutable")

	s.Run("unknown contact", func() {
		err := s.store.UpdateToSecondary(s.ctx, 9999, older.ID, later)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *storeSuite) TestRelinkSecondaries() {
	survivor := s.insert("a@x.com", "", models.PrimaryLink(), t0)
	demoted := s.insert("b@x.com", "", models.PrimaryLink(), t0.Add(time.Minute))
	child1 := s.insert("c@x.com", "", models.SecondaryLink(demoted.ID), t0.Add(2*time.Minute))
	child2 := s.insert("d@x.com", "", models.SecondaryLink(demoted.ID), t0.Add(3*time.Minute))
	other := s.insert("e@x.com", "", models.SecondaryLink(survivor.ID), t0.Add(4*time.Minute))

	relinked, err := s.store.RelinkSecondaries(s.ctx, demoted.ID, survivor.ID, t0.Add(time.Hour))
	s.Require().NoError(err)
	s.Equal([]models.ContactID{child1.ID, child2.ID}, relinked)

	for _, id := range []models.ContactID{child1.ID, child2.ID, other.ID} {
		got, err := s.store.FindByID(s.ctx, id)
		s.Require().NoError(err)
		linked, _ := got.Link.LinkedID()
		s.Equal(survivor.ID, linked)
	}

	none, err := s.store.RelinkSecondaries(s.ctx, demoted.ID, survivor.ID, t0.Add(time.Hour))
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *storeSuite) TestFindByIDNotFound() {
	_, err := s.store.FindByID(s.ctx, 4242)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
