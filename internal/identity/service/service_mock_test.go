package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	identitymetrics "contactlink/internal/identity/metrics"
	"contactlink/internal/identity/models"
	"contactlink/internal/identity/service"
	"contactlink/internal/identity/service/mocks"
	dErrors "contactlink/pkg/domain-errors"
	"contactlink/pkg/platform/sentinel"
	txcontext "contactlink/pkg/platform/tx"
)

type IdentifyFailureSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockStore
	tx      *mocks.MockContactStoreTx
	audit   *mocks.MockAuditPublisher
	service *service.Service
	ctx     context.Context
	now     time.Time
}

func TestIdentifyFailureSuite(t *testing.T) {
	suite.Run(t, new(IdentifyFailureSuite))
}

func (s *IdentifyFailureSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.tx = mocks.NewMockContactStoreTx(s.ctrl)
	s.audit = mocks.NewMockAuditPublisher(s.ctrl)
	s.now = time.Date(2023, 4, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = context.Background()
	s.service = s.newService()
}

func (s *IdentifyFailureSuite) newService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithTx(s.tx),
		service.WithClock(func() time.Time { return s.now }),
		service.WithAuditPublisher(s.audit),
		service.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		service.WithMetrics(identitymetrics.NewWithRegisterer(prometheus.NewRegistry())),
	}
	return service.New(s.store, append(base, opts...)...)
}

func (s *IdentifyFailureSuite) TearDownTest() {
	s.ctrl.Finish()
}

// passThroughTx runs fn directly, once per expected attempt.
func (s *IdentifyFailureSuite) passThroughTx(times int) {
	s.tx.EXPECT().RunInTx(gomock.Any(), gomock.Any(), gomock.Any()).
		Times(times).
		DoAndReturn(func(ctx context.Context, _ []string, fn func(context.Context) error) error {
			return fn(ctx)
		})
}

func primary(id int64, email, phone string, createdAt time.Time) *models.Contact {
	c := &models.Contact{
		ID:        models.ContactID(id),
		Link:      models.PrimaryLink(),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if email != "" {
		c.Email = strPtr(email)
	}
	if phone != "" {
		c.PhoneNumber = strPtr(phone)
	}
	return c
}

func (s *IdentifyFailureSuite) TestInvalidRequestNeverTouchesStore() {
	_, err := s.service.Identify(s.ctx, models.IdentifyRequest{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *IdentifyFailureSuite) TestStoreErrorsAreMapped() {
	cases := []struct {
		name string
		err  error
		code dErrors.Code
	}{
		{"unexpected failure", errors.New("disk on fire"), dErrors.CodeInternal},
		{"store unavailable", fmt.Errorf("dial: %w", sentinel.ErrUnavailable), dErrors.CodeUnavailable},
		{"deadline", context.DeadlineExceeded, dErrors.CodeTimeout},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.passThroughTx(1)
			s.store.EXPECT().ListAll(gomock.Any()).Return(nil, tc.err)

			_, err := s.service.Identify(s.ctx, req("a@x.com", ""))

			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tc.code))
			s.ErrorIs(err, tc.err)
		})
	}
}

func (s *IdentifyFailureSuite) TestInsertFailureAbortsWithoutAudit() {
	s.passThroughTx(1)
	s.store.EXPECT().ListAll(gomock.Any()).Return(nil, nil)
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil, errors.New("constraint"))

	_, err := s.service.Identify(s.ctx, req("a@x.com", ""))

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *IdentifyFailureSuite) TestDemotionOfVanishedContactIsConflict() {
	older := primary(1, "a@x.com", "", s.now.Add(-2*time.Hour))
	newer := primary(2, "", "111", s.now.Add(-time.Hour))
	s.passThroughTx(1)
	s.store.EXPECT().ListAll(gomock.Any()).Return([]*models.Contact{older, newer}, nil)
	s.store.EXPECT().UpdateToSecondary(gomock.Any(), newer.ID, older.ID, s.now).Return(sentinel.ErrNotFound)

	_, err := s.service.Identify(s.ctx, req("a@x.com", "111"))

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *IdentifyFailureSuite) TestTxErrorIsReturnedUnchanged() {
	txErr := dErrors.New(dErrors.CodeUnavailable, "database down")
	s.tx.EXPECT().RunInTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(txErr)

	_, err := s.service.Identify(s.ctx, req("a@x.com", ""))

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *IdentifyFailureSuite) TestLockSetGrowsToMatchedGroup() {
	existing := primary(1, "a@x.com", "111", s.now.Add(-time.Hour))
	gomock.InOrder(
		s.tx.EXPECT().RunInTx(gomock.Any(), []string{"email:a@x.com"}, gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ []string, fn func(context.Context) error) error {
				return fn(ctx)
			}),
		s.tx.EXPECT().RunInTx(gomock.Any(), []string{"email:a@x.com", "phone:111"}, gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ []string, fn func(context.Context) error) error {
				return fn(ctx)
			}),
	)
	s.store.EXPECT().ListAll(gomock.Any()).Times(2).Return([]*models.Contact{existing}, nil)

	view, err := s.service.Identify(s.ctx, req("a@x.com", ""))

	s.Require().NoError(err)
	s.Equal(existing.ID, view.PrimaryContactID)
	s.Equal([]string{"111"}, view.PhoneNumbers)
}

// grantingLocker hands out every key it is asked for.
type grantingLocker struct {
	asked [][]string
}

func (l *grantingLocker) TryLock(_ context.Context, keys []string) (bool, error) {
	l.asked = append(l.asked, keys)
	return true, nil
}

func (s *IdentifyFailureSuite) TestLockSetGrowsInsideTransaction() {
	existing := primary(1, "a@x.com", "111", s.now.Add(-time.Hour))
	locker := &grantingLocker{}
	s.tx.EXPECT().RunInTx(gomock.Any(), []string{"email:a@x.com"}, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ []string, fn func(context.Context) error) error {
			return fn(txcontext.WithLocker(ctx, locker))
		})
	s.store.EXPECT().ListAll(gomock.Any()).Times(2).Return([]*models.Contact{existing}, nil)

	view, err := s.service.Identify(s.ctx, req("a@x.com", ""))

	s.Require().NoError(err)
	s.Equal(existing.ID, view.PrimaryContactID)
	s.Equal([][]string{{"phone:111"}}, locker.asked, "only the missing key is requested")
}

func (s *IdentifyFailureSuite) TestLockSetOnlyGrowsAcrossRetries() {
	phones := []string{"101", "102", "101"}
	calls := 0
	s.store.EXPECT().ListAll(gomock.Any()).Times(3).DoAndReturn(func(context.Context) ([]*models.Contact, error) {
		phone := phones[calls]
		calls++
		return []*models.Contact{primary(1, "a@x.com", phone, s.now.Add(-time.Hour))}, nil
	})
	var seen [][]string
	s.tx.EXPECT().RunInTx(gomock.Any(), gomock.Any(), gomock.Any()).
		Times(3).
		DoAndReturn(func(ctx context.Context, keys []string, fn func(context.Context) error) error {
			seen = append(seen, keys)
			return fn(ctx)
		})

	_, err := s.service.Identify(s.ctx, req("a@x.com", ""))

	s.Require().NoError(err)
	s.Equal([][]string{
		{"email:a@x.com"},
		{"email:a@x.com", "phone:101"},
		{"email:a@x.com", "phone:101", "phone:102"},
	}, seen, "a key seen once stays held even after the group drops it")
}

func (s *IdentifyFailureSuite) TestGroupThatKeepsGrowingRetriesUntilDeadline() {
	svc := s.newService(service.WithTxTimeout(30 * time.Millisecond))
	s.tx.EXPECT().RunInTx(gomock.Any(), gomock.Any(), gomock.Any()).
		MinTimes(5).
		DoAndReturn(func(ctx context.Context, _ []string, fn func(context.Context) error) error {
			time.Sleep(time.Millisecond)
			return fn(ctx)
		})
	calls := 0
	s.store.EXPECT().ListAll(gomock.Any()).MinTimes(5).DoAndReturn(func(context.Context) ([]*models.Contact, error) {
		calls++
		return []*models.Contact{
			primary(1, "a@x.com", fmt.Sprintf("10%d", calls), s.now.Add(-time.Hour)),
		}, nil
	})

	_, err := svc.Identify(s.ctx, req("a@x.com", ""))

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
}

func (s *IdentifyFailureSuite) TestAuditFailureDoesNotFailCall() {
	s.passThroughTx(1)
	s.store.EXPECT().ListAll(gomock.Any()).Return(nil, nil)
	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, nc models.NewContact) (*models.Contact, error) {
			s.True(nc.Link.IsPrimary())
			s.Equal(s.now, nc.CreatedAt)
			return &models.Contact{ID: 7, Email: nc.Email, Link: nc.Link, CreatedAt: nc.CreatedAt, UpdatedAt: nc.CreatedAt}, nil
		})
	s.audit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	view, err := s.service.Identify(s.ctx, req("a@x.com", ""))

	s.Require().NoError(err)
	s.Equal(models.ContactID(7), view.PrimaryContactID)
}
