package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"contactlink/internal/identity/models"
	"contactlink/internal/identity/service"
	"contactlink/internal/identity/store/contact"
	dErrors "contactlink/pkg/domain-errors"
	audit "contactlink/pkg/platform/audit"
	"contactlink/pkg/platform/audit/publisher"
	auditmemory "contactlink/pkg/platform/audit/store/memory"
	"contactlink/pkg/requestcontext"
)

type IdentifySuite struct {
	suite.Suite
	ctx     context.Context
	store   *contact.InMemory
	audit   *auditmemory.InMemoryStore
	service *service.Service
	now     time.Time
}

func TestIdentifySuite(t *testing.T) {
	suite.Run(t, new(IdentifySuite))
}

func (s *IdentifySuite) SetupTest() {
	s.now = time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithRequestID(context.Background(), "req-1")
	s.store = contact.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	s.service = s.newService()
}

func (s *IdentifySuite) newService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithAuditPublisher(publisher.NewPublisher(s.audit)),
		service.WithClock(func() time.Time { return s.now }),
	}
	return service.New(s.store, append(base, opts...)...)
}

func strPtr(v string) *string { return &v }

func req(email, phone string) models.IdentifyRequest {
	var r models.IdentifyRequest
	if email != "" {
		r.Email = strPtr(email)
	}
	if phone != "" {
		r.PhoneNumber = strPtr(phone)
	}
	return r
}

// identify runs one call with the clock one minute after the previous one.
func (s *IdentifySuite) identify(svc *service.Service, email, phone string) *models.IdentityView {
	s.now = s.now.Add(time.Minute)
	view, err := svc.Identify(s.ctx, req(email, phone))
	s.Require().NoError(err)
	return view
}

// seed inserts a record directly, bypassing consolidation.
func (s *IdentifySuite) seed(email, phone string, link models.Link) *models.Contact {
	s.now = s.now.Add(time.Minute)
	nc := models.NewContact{Link: link, CreatedAt: s.now}
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

func (s *IdentifySuite) all() []*models.Contact {
	all, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	return all
}

func (s *IdentifySuite) contact(id models.ContactID) *models.Contact {
	for _, c := range s.all() {
		if c.ID == id {
			return c
		}
	}
	s.FailNow("contact not stored", "id %s", id)
	return nil
}

func (s *IdentifySuite) requireNoChains() {
	byID := make(map[models.ContactID]*models.Contact)
	for _, c := range s.all() {
		byID[c.ID] = c
	}
	for _, c := range byID {
		if linked, ok := c.Link.LinkedID(); ok {
			target, found := byID[linked]
			s.Require().True(found, "contact %s links to missing %s", c.ID, linked)
			s.Require().True(target.IsPrimary(), "contact %s links to secondary %s", c.ID, linked)
		}
	}
}

func (s *IdentifySuite) TestHillValleyScenario() {
	view := s.identify(s.service, "lorraine@hillvalley.edu", "123456")
	s.Equal(&models.IdentityView{
		PrimaryContactID:    1,
		Emails:              []string{"lorraine@hillvalley.edu"},
		PhoneNumbers:        []string{"123456"},
		SecondaryContactIDs: []models.ContactID{},
	}, view)

	view = s.identify(s.service, "mcfly@hillvalley.edu", "123456")
	s.Equal(&models.IdentityView{
		PrimaryContactID:    1,
		Emails:              []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"},
		PhoneNumbers:        []string{"123456"},
		SecondaryContactIDs: []models.ContactID{2},
	}, view)

	second := s.contact(2)
	linked, ok := second.Link.LinkedID()
	s.True(ok)
	s.Equal(models.ContactID(1), linked)
}

func (s *IdentifySuite) TestIdempotentResubmission() {
	s.identify(s.service, "lorraine@hillvalley.edu", "123456")
	s.identify(s.service, "mcfly@hillvalley.edu", "123456")

	first := s.identify(s.service, "mcfly@hillvalley.edu", "123456")
	second := s.identify(s.service, "mcfly@hillvalley.edu", "123456")

	s.Equal(first, second)
	s.Len(s.all(), 2)
}

func (s *IdentifySuite) TestNewPrimary() {
	view := s.identify(s.service, "doc@hillvalley.edu", "555")

	all := s.all()
	s.Require().Len(all, 1)
	s.True(all[0].IsPrimary())
	s.Nil(all[0].Link.LinkedIDValue())
	s.Equal(all[0].ID, view.PrimaryContactID)
	s.Empty(view.SecondaryContactIDs)
	s.NotNil(view.SecondaryContactIDs)

	events, err := s.audit.ListByAction(s.ctx, audit.EventContactCreated)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("req-1", events[0].RequestID)
	s.Equal(int64(all[0].ID), events[0].PrimaryContactID)
}

func (s *IdentifySuite) TestSecondaryLinking() {
	primary := s.identify(s.service, "a@x.com", "")

	view := s.identify(s.service, "a@x.com", "999")

	all := s.all()
	s.Require().Len(all, 2)
	linked, ok := all[1].Link.LinkedID()
	s.True(ok)
	s.Equal(primary.PrimaryContactID, linked)
	s.Contains(view.Emails, "a@x.com")
	s.Equal([]string{"999"}, view.PhoneNumbers)
	s.Equal([]models.ContactID{all[1].ID}, view.SecondaryContactIDs)
}

func (s *IdentifySuite) TestPhoneOnlyRequestCreatesNothingWhenKnown() {
	s.identify(s.service, "a@x.com", "111")

	view := s.identify(s.service, "", "111")

	s.Len(s.all(), 1)
	s.Equal([]string{"a@x.com"}, view.Emails)
}

func (s *IdentifySuite) TestPrimaryDemotion() {
	older := s.seed("a@x.com", "111", models.PrimaryLink())
	newer := s.seed("b@x.com", "111", models.PrimaryLink())

	view := s.identify(s.service, "", "111")

	s.Len(s.all(), 2, "no third record")
	s.True(s.contact(older.ID).IsPrimary())
	demoted := s.contact(newer.ID)
	linked, ok := demoted.Link.LinkedID()
	s.True(ok)
	s.Equal(older.ID, linked)
	s.True(demoted.UpdatedAt.After(newer.UpdatedAt))

	s.Equal(older.ID, view.PrimaryContactID)
	s.Equal([]string{"a@x.com", "b@x.com"}, view.Emails)
	s.Equal([]models.ContactID{newer.ID}, view.SecondaryContactIDs)

	events, err := s.audit.ListByAction(s.ctx, audit.EventContactDemoted)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(int64(newer.ID), events[0].ContactID)
}

func (s *IdentifySuite) TestMergingTwoIdentities() {
	s.identify(s.service, "george@hillvalley.edu", "919191")
	s.identify(s.service, "biffsucks@hillvalley.edu", "717171")

	view := s.identify(s.service, "george@hillvalley.edu", "717171")

	s.Equal(&models.IdentityView{
		PrimaryContactID:    1,
		Emails:              []string{"george@hillvalley.edu", "biffsucks@hillvalley.edu"},
		PhoneNumbers:        []string{"919191", "717171"},
		SecondaryContactIDs: []models.ContactID{2},
	}, view)
	s.Len(s.all(), 2)
	s.requireNoChains()
}

func (s *IdentifySuite) TestDemotionRelinksSecondaries() {
	survivor := s.seed("a@x.com", "111", models.PrimaryLink())
	demoted := s.seed("b@x.com", "222", models.PrimaryLink())
	matchedChild := s.seed("c@x.com", "222", models.SecondaryLink(demoted.ID))
	hiddenChild := s.seed("d@x.com", "444", models.SecondaryLink(demoted.ID))

	view := s.identify(s.service, "a@x.com", "222")

	s.Equal(survivor.ID, view.PrimaryContactID)
	s.Equal([]models.ContactID{demoted.ID, matchedChild.ID}, view.SecondaryContactIDs)
	for _, id := range []models.ContactID{demoted.ID, matchedChild.ID, hiddenChild.ID} {
		linked, _ := s.contact(id).Link.LinkedID()
		s.Equal(survivor.ID, linked)
	}
	s.requireNoChains()

	events, err := s.audit.ListByAction(s.ctx, audit.EventContactRelinked)
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *IdentifySuite) TestNoSpuriousRecord() {
	s.seed("a@x.com", "111", models.PrimaryLink())

	s.identify(s.service, "a@x.com", "111")

	s.Len(s.all(), 1)
	events, err := s.audit.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Empty(events)
}

func (s *IdentifySuite) TestNormalizesInput() {
	s.identify(s.service, " doc@hillvalley.edu ", "   ")

	all := s.all()
	s.Require().Len(all, 1)
	s.Equal("doc@hillvalley.edu", *all[0].Email)
	s.Nil(all[0].PhoneNumber)
}

func (s *IdentifySuite) TestRejectsEmptyRequest() {
	_, err := s.service.Identify(s.ctx, req("", " "))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	s.Empty(s.all())
}

func (s *IdentifySuite) TestInconsistentGroupIsReported() {
	orphanParent := s.seed("x@x.com", "", models.PrimaryLink())
	secondary := s.seed("a@x.com", "111", models.SecondaryLink(orphanParent.ID))

	view := s.identify(s.service, "", "111")

	s.False(view.HasPrimary())
	s.Equal([]models.ContactID{secondary.ID}, view.SecondaryContactIDs)
	s.Len(s.all(), 2)

	events, err := s.audit.ListByAction(s.ctx, audit.EventIdentityInconsistent)
	s.Require().NoError(err)
	s.Len(events, 1)
}

func (s *IdentifySuite) TestInconsistentGroupWithNewAttributeCreatesPrimary() {
	orphanParent := s.seed("x@x.com", "", models.PrimaryLink())
	s.seed("a@x.com", "111", models.SecondaryLink(orphanParent.ID))

	view := s.identify(s.service, "new@x.com", "111")

	all := s.all()
	s.Require().Len(all, 3)
	s.True(all[2].IsPrimary())
	s.Equal(all[2].ID, view.PrimaryContactID)
}

func (s *IdentifySuite) TestStrictConsistencyFailsInconsistentGroup() {
	strict := s.newService(service.WithStrictConsistency(true))
	orphanParent := s.seed("x@x.com", "", models.PrimaryLink())
	s.seed("a@x.com", "111", models.SecondaryLink(orphanParent.ID))

	_, err := strict.Identify(s.ctx, req("new@x.com", "111"))

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.Len(s.all(), 2, "nothing written")
}

func (s *IdentifySuite) TestClosureStrategyFindsIndirectPrimaries() {
	closure := s.newService(service.WithMatchStrategy(models.MatchClosure))
	first := s.seed("a@x.com", "111", models.PrimaryLink())
	bridge := s.seed("b@x.com", "111", models.SecondaryLink(first.ID))
	other := s.seed("b@x.com", "333", models.PrimaryLink())

	direct := s.identify(s.service, "a@x.com", "")
	s.Empty(direct.SecondaryContactIDs, "direct matching stops at the first record")
	s.True(s.contact(other.ID).IsPrimary())

	view := s.identify(closure, "a@x.com", "")

	s.Equal(first.ID, view.PrimaryContactID)
	s.Equal([]string{"a@x.com", "b@x.com"}, view.Emails)
	s.Equal([]string{"111", "333"}, view.PhoneNumbers)
	s.Equal([]models.ContactID{bridge.ID, other.ID}, view.SecondaryContactIDs)
	s.False(s.contact(other.ID).IsPrimary())
	s.requireNoChains()
}

// Stamps come from the clock once the identity keys are held, so a caller
// that waited behind another writer is never recorded as older than it.
func (s *IdentifySuite) TestCreatedAtIsTakenWhenWriting() {
	first := s.seed("doc@hillvalley.edu", "555", models.PrimaryLink())
	var reads []time.Time
	svc := s.newService(service.WithClock(func() time.Time {
		s.now = s.now.Add(time.Second)
		reads = append(reads, s.now)
		return s.now
	}))

	view, err := svc.Identify(s.ctx, req("marty@hillvalley.edu", "555"))
	s.Require().NoError(err)

	s.Equal(first.ID, view.PrimaryContactID)
	s.Require().Len(reads, 1, "one stamp per committed attempt")
	all := s.all()
	s.Require().Len(all, 2)
	s.Equal(reads[0], all[1].CreatedAt)
	s.True(all[1].CreatedAt.After(first.CreatedAt))
}

func (s *IdentifySuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.service.Identify(ctx, req("a@x.com", ""))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}
