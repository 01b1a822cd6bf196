package core

import (
	"context"
	"time"

	"github.com/chifamba/dzinza-sub004/internal/infra/lock"
	"github.com/chifamba/dzinza-sub004/internal/infra/persistence/memory"
	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

const (
	defaultRetryAttempts    = 3
	defaultRetryBackoff     = 50 * time.Millisecond
	defaultOperationTimeout = 10 * time.Second
)

// Service is the consistency coordinator. Every mutation runs under the
// family tree's lock inside one store transaction so persons, relationship
// edges and tree statistics change together or not at all.
type Service struct {
	store     PersistentStore
	policy    Policy
	locker    lock.Locker
	logger    Logger
	audit     AuditRecorder
	metrics   MetricsRecorder
	tracer    Tracer
	clock     Clock
	attempts  int
	backoff   time.Duration
	opTimeout time.Duration
	newIdent  func() string
}

// Option configures the service.
type Option func(*Service)

// WithPolicy replaces the default registry-backed policy.
func WithPolicy(p Policy) Option {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithLocker replaces the in-process tree locker.
func WithLocker(l lock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.audit = r
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithClock overrides the service clock used for durations and audit timestamps.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithRetry bounds consistency-failure retries. attempts counts the first try.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if backoff >= 0 {
			s.backoff = backoff
		}
	}
}

// WithOperationTimeout sets the deadline applied when the caller supplies none.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithIdentifierGenerator overrides generation of default person identifiers.
func WithIdentifierGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newIdent = fn
		}
	}
}

// NewService constructs a coordinator backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		policy:    NewTreePolicy(store),
		locker:    lock.NewMemory(),
		logger:    noopLogger{},
		audit:     noopAuditRecorder{},
		metrics:   noopMetricsRecorder{},
		tracer:    noopTracer{},
		clock:     ClockFunc(func() time.Time { return time.Now().UTC() }),
		attempts:  defaultRetryAttempts,
		backoff:   defaultRetryBackoff,
		opTimeout: defaultOperationTimeout,
		newIdent:  defaultIdentifier,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func requireActor(actorID string) error {
	if actorID == "" {
		return domain.New(domain.CodeUnauthenticated, "caller identity required")
	}
	return nil
}

// authorizeEdit resolves the tree and checks edit rights outside of any store
// transaction.
func (s *Service) authorizeEdit(ctx context.Context, treeID, actorID string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	if err := s.requireTree(ctx, treeID); err != nil {
		return err
	}
	ok, err := s.policy.CanEdit(ctx, treeID, actorID)
	if err != nil {
		return translate(err)
	}
	if !ok {
		return forbidden("user %s may not edit family tree %s", actorID, treeID)
	}
	return nil
}

func (s *Service) authorizeView(ctx context.Context, treeID, actorID string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	if err := s.requireTree(ctx, treeID); err != nil {
		return err
	}
	ok, err := s.policy.CanView(ctx, treeID, actorID)
	if err != nil {
		return translate(err)
	}
	if !ok {
		return forbidden("user %s may not view family tree %s", actorID, treeID)
	}
	return nil
}

func (s *Service) requireTree(ctx context.Context, treeID string) error {
	if treeID == "" {
		return invalid("family tree id is required")
	}
	var found bool
	err := s.store.View(ctx, func(view TransactionView) error {
		_, found = view.FindFamilyTree(treeID)
		return nil
	})
	if err != nil {
		return translate(err)
	}
	if !found {
		return notFound("family tree %s not found", treeID)
	}
	return nil
}

// mutate runs fn under the tree lock in a store transaction, retrying
// consistency failures with linear backoff. Exhausted retries report an
// unknown outcome.
func (s *Service) mutate(ctx context.Context, op, treeID string, fn func(tx Transaction) error) error {
	var last *domain.Error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		res, err := s.attemptOnce(ctx, treeID, fn)
		s.logViolations(treeID, res)
		if err == nil {
			return nil
		}
		last = translate(err)
		if !retryable(last) || ctx.Err() != nil {
			return last
		}
		s.logger.Warn("retrying after consistency failure",
			"operation", op,
			"tree_id", treeID,
			"attempt", attempt,
			"error", last.Error(),
		)
		if attempt == s.attempts {
			break
		}
		if err := sleepContext(ctx, s.backoff*time.Duration(attempt)); err != nil {
			return translate(err)
		}
	}
	return &domain.Error{
		Code:           domain.CodeConsistency,
		Message:        "retries exhausted",
		Err:            last,
		OutcomeUnknown: true,
	}
}

func (s *Service) attemptOnce(ctx context.Context, treeID string, fn func(tx Transaction) error) (Result, error) {
	unlock, err := s.locker.Lock(ctx, "tree:"+treeID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()
	return s.store.RunInTransaction(ctx, fn)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// view reads committed state, translating store errors.
func (s *Service) view(ctx context.Context, fn func(TransactionView) error) error {
	if err := s.store.View(ctx, fn); err != nil {
		return translate(err)
	}
	return nil
}
