package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	identitymetrics "contactlink/internal/identity/metrics"
	"contactlink/internal/identity/models"
	dErrors "contactlink/pkg/domain-errors"
	"contactlink/pkg/platform/sentinel"
	txcontext "contactlink/pkg/platform/tx"
	"contactlink/pkg/requestcontext"
)

// Store is the persistence port of the consolidator. Calls made with a
// transaction context join that transaction.
type Store interface {
	// Insert creates a record and returns it with its assigned id.
	Insert(ctx context.Context, c models.NewContact) (*models.Contact, error)
	// UpdateToSecondary rewrites id as a secondary of linkedID.
	UpdateToSecondary(ctx context.Context, id, linkedID models.ContactID, now time.Time) error
	// RelinkSecondaries re-points every secondary of from at to and returns
	// the re-pointed ids.
	RelinkSecondaries(ctx context.Context, from, to models.ContactID, now time.Time) ([]models.ContactID, error)
	// ListAll returns every live record.
	ListAll(ctx context.Context) ([]*models.Contact, error)
}

var errExpandLocks = errors.New("lock set must grow")

// Service resolves contact submissions into consolidated identities.
type Service struct {
	contacts  Store
	tx        ContactStoreTx
	txTimeout time.Duration
	strategy  models.MatchStrategy
	strict    bool
	clock     func() time.Time

	logger       *slog.Logger
	metrics      *identitymetrics.Metrics
	auditEmitter *auditEmitter
	tracer       trace.Tracer
}

type serviceConfig struct {
	tx             ContactStoreTx
	txTimeout      time.Duration
	strategy       models.MatchStrategy
	strict         bool
	clock          func() time.Time
	logger         *slog.Logger
	metrics        *identitymetrics.Metrics
	auditPublisher AuditPublisher
	tracer         trace.Tracer
}

type Option func(*serviceConfig)

// WithTx sets the transactional boundary. Defaults to in-process sharded locks.
func WithTx(tx ContactStoreTx) Option {
	return func(c *serviceConfig) {
		c.tx = tx
	}
}

// WithTxTimeout bounds one identify call, lock retries included, when the
// caller's context has no deadline. It also times the default in-process
// transaction.
func WithTxTimeout(d time.Duration) Option {
	return func(c *serviceConfig) {
		c.txTimeout = d
	}
}

func WithMatchStrategy(s models.MatchStrategy) Option {
	return func(c *serviceConfig) {
		c.strategy = s
	}
}

// WithStrictConsistency makes a matched group without a primary fail the call
// instead of logging a warning.
func WithStrictConsistency(strict bool) Option {
	return func(c *serviceConfig) {
		c.strict = strict
	}
}

// WithClock sets the source of createdAt and updatedAt stamps. It is read
// inside the transaction, once the identity keys are held.
func WithClock(now func() time.Time) Option {
	return func(c *serviceConfig) {
		c.clock = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

func WithMetrics(m *identitymetrics.Metrics) Option {
	return func(c *serviceConfig) {
		c.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(c *serviceConfig) {
		c.auditPublisher = publisher
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *serviceConfig) {
		c.tracer = tracer
	}
}

func New(contacts Store, opts ...Option) *Service {
	cfg := &serviceConfig{strategy: models.MatchDirect}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.tx == nil {
		cfg.tx = NewShardedTx(cfg.txTimeout)
	}
	if cfg.clock == nil {
		cfg.clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer("contactlink/identity")
	}
	return &Service{
		contacts:     contacts,
		tx:           cfg.tx,
		txTimeout:    cfg.txTimeout,
		strategy:     cfg.strategy,
		strict:       cfg.strict,
		clock:        cfg.clock,
		logger:       cfg.logger,
		metrics:      cfg.metrics,
		auditEmitter: newAuditEmitter(cfg.logger, cfg.auditPublisher),
		tracer:       cfg.tracer,
	}
}

// Identify matches the request against stored contacts, records whatever is
// new and returns the consolidated identity.
//
// The read, decision and writes run in one transaction locked on the
// request's email and phone keys plus the keys of every matched record. Keys
// the matched group reveals are taken inside the transaction when they are
// free. When one is busy the attempt is abandoned and retried holding the
// union of every key seen so far, until the call's deadline.
func (s *Service) Identify(ctx context.Context, req models.IdentifyRequest) (*models.IdentityView, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveIdentifyLatency(time.Since(start))
	}()

	ctx, span := s.tracer.Start(ctx, "identity.Identify")
	defer span.End()

	req = req.Normalized()
	if err := req.Validate(); err != nil {
		s.metrics.IncrementOutcome(identitymetrics.OutcomeRejected)
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("identify.email_given", req.Email != nil),
		attribute.Bool("identify.phone_given", req.PhoneNumber != nil),
		attribute.String("identify.match_strategy", string(s.strategy)),
	)

	ctx, cancel := txcontext.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	keys := req.LockKeys()
	for attempt := 1; ; attempt++ {
		res, err := s.identifyOnce(ctx, req, keys)
		if err == nil {
			s.auditEmitter.flush(ctx, res.events)
			s.recordOutcome(res)
			span.SetAttributes(
				attribute.Int64("identify.primary_contact_id", int64(res.view.PrimaryContactID)),
				attribute.Int("identify.attempts", attempt),
			)
			return &res.view, nil
		}

		var expand *lockExpansion
		if errors.As(err, &expand) {
			keys = expand.keys
			if ctx.Err() == nil {
				continue
			}
			err = dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "identity group kept changing until the deadline")
		}
		s.metrics.IncrementOutcome(identitymetrics.OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
}

type identifyResult struct {
	view     models.IdentityView
	plan     models.Plan
	inserted *models.Contact
	events   pendingEvents
}

type lockExpansion struct {
	keys []string
}

func (e *lockExpansion) Error() string { return errExpandLocks.Error() }
func (e *lockExpansion) Unwrap() error { return errExpandLocks }

func (s *Service) identifyOnce(ctx context.Context, req models.IdentifyRequest, keys []string) (*identifyResult, error) {
	var res *identifyResult
	err := s.tx.RunInTx(ctx, keys, func(txCtx context.Context) error {
		matched, err := s.matchLocked(txCtx, req, keys)
		if err != nil {
			return err
		}
		s.metrics.ObserveMatchSize(len(matched.Matched))

		now := s.clock()
		plan := models.PlanConsolidation(req, matched, now)
		r := &identifyResult{plan: plan}
		if plan.Inconsistent {
			if err := s.reportInconsistent(txCtx, plan, &r.events); err != nil {
				return err
			}
		}

		if err := s.apply(txCtx, r, now); err != nil {
			return err
		}
		r.view = models.BuildView(plan, r.inserted)
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// matchLocked reads and matches until every key of the matched group is held.
// Missing keys are taken without waiting and the read repeated; a refusal
// returns a lockExpansion carrying every key seen.
func (s *Service) matchLocked(txCtx context.Context, req models.IdentifyRequest, held []string) (models.MatchResult, error) {
	for {
		if err := txCtx.Err(); err != nil {
			return models.MatchResult{}, wrapStoreErr(err, "transaction aborted: context cancelled")
		}
		all, err := s.contacts.ListAll(txCtx)
		if err != nil {
			return models.MatchResult{}, wrapStoreErr(err, "failed to list contacts")
		}

		matched := models.MatchWith(s.strategy, req, all)
		need := models.GroupLockKeys(req, matched.Matched)
		if covers(held, need) {
			return matched, nil
		}

		s.metrics.IncrementLockExpansion()
		wider := mergeKeys(held, need)
		ok, err := txcontext.TryLock(txCtx, missingKeys(held, need))
		if err != nil {
			return models.MatchResult{}, wrapStoreErr(err, "failed to lock identity keys")
		}
		if !ok {
			return models.MatchResult{}, &lockExpansion{keys: wider}
		}
		held = wider
	}
}

// apply performs the plan's writes: the insert first, then each demotion with
// its secondaries re-pointed at the surviving primary.
func (s *Service) apply(ctx context.Context, r *identifyResult, now time.Time) error {
	plan := r.plan

	if plan.Insert != nil {
		created, err := s.contacts.Insert(ctx, *plan.Insert)
		if err != nil {
			return wrapStoreErr(err, "failed to create contact")
		}
		r.inserted = created
		primary := plan.PrimaryID()
		if created.IsPrimary() {
			primary = created.ID
		}
		r.events.contactCreated(created, primary)
	}

	survivor := plan.PrimaryID()
	for _, id := range plan.Demote {
		if err := s.contacts.UpdateToSecondary(ctx, id, survivor, now); err != nil {
			return wrapStoreErr(err, "failed to demote contact")
		}
		r.events.contactDemoted(id, survivor)

		relinked, err := s.contacts.RelinkSecondaries(ctx, id, survivor, now)
		if err != nil {
			return wrapStoreErr(err, "failed to relink secondary contacts")
		}
		for _, child := range relinked {
			r.events.contactRelinked(child, survivor)
		}
		s.metrics.AddRelinked(len(relinked))
	}
	if len(plan.Demote) > 0 {
		s.logger.InfoContext(ctx, "demoted surplus primary contacts",
			"primary_contact_id", survivor,
			"demoted", len(plan.Demote),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	return nil
}

func (s *Service) reportInconsistent(ctx context.Context, plan models.Plan, events *pendingEvents) error {
	ids := make([]int64, 0, len(plan.Group))
	for _, c := range plan.Group {
		ids = append(ids, int64(c.ID))
	}
	s.logger.WarnContext(ctx, "matched contacts have no primary",
		"contact_ids", ids,
		"strict", s.strict,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.metrics.IncrementInconsistent()
	if s.strict {
		return dErrors.New(dErrors.CodeInvariantViolation, "matched contacts have no primary contact")
	}
	events.identityInconsistent(plan.Group)
	return nil
}

func (s *Service) recordOutcome(res *identifyResult) {
	switch {
	case res.inserted != nil && res.inserted.IsPrimary():
		s.metrics.IncrementOutcome(identitymetrics.OutcomeCreatedPrimary)
	case res.inserted != nil:
		s.metrics.IncrementOutcome(identitymetrics.OutcomeCreatedSecondary)
	case len(res.plan.Demote) > 0:
		s.metrics.IncrementOutcome(identitymetrics.OutcomeConsolidated)
	default:
		s.metrics.IncrementOutcome(identitymetrics.OutcomeUnchanged)
	}
	if res.inserted != nil {
		s.metrics.IncrementCreated(string(res.inserted.Link.Precedence()))
	}
	s.metrics.AddDemoted(len(res.plan.Demote))
}

// covers reports whether every key in need is in held. Both are sorted.
func covers(held, need []string) bool {
	i := 0
	for _, k := range need {
		for i < len(held) && held[i] < k {
			i++
		}
		if i == len(held) || held[i] != k {
			return false
		}
	}
	return true
}

// mergeKeys returns the sorted union of two sorted key sets.
func mergeKeys(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// missingKeys returns the keys of need that are not in held. Both are sorted.
func missingKeys(held, need []string) []string {
	var out []string
	i := 0
	for _, k := range need {
		for i < len(held) && held[i] < k {
			i++
		}
		if i == len(held) || held[i] != k {
			out = append(out, k)
		}
	}
	return out
}

func wrapStoreErr(err error, msg string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
